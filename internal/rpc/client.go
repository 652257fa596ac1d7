package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/metrics"
)

// Client is a rate-limited Solana JSON-RPC client that rotates across a pool
// of credentials and retries transient failures.
type Client struct {
	httpClient *http.Client
	endpoints  []string
	next       atomic.Uint64
	requestID  atomic.Uint64
	limiter    *Limiter
	backoff    Backoff
	clock      Clock
	logger     *logrus.Logger
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL string
	// Credentials are API keys appended as ?api-key=, or complete endpoint URLs.
	Credentials       []string
	RequestsPerSecond float64
	Timeout           time.Duration
	Backoff           Backoff
	Clock             Clock
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

// NewClient creates a new RPC client. It fails when no credential is given.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 9
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	endpoints := make([]string, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		ep, err := endpointFor(cfg.BaseURL, cred)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		endpoints:  endpoints,
		limiter:    NewLimiter(cfg.RequestsPerSecond, cfg.Clock),
		backoff:    cfg.Backoff,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}, nil
}

func endpointFor(baseURL, credential string) (string, error) {
	if strings.HasPrefix(credential, "http://") || strings.HasPrefix(credential, "https://") {
		return credential, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("invalid rpc base url %q", baseURL)
	}
	q := u.Query()
	q.Set("api-key", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Call makes a JSON-RPC call and decodes the result into result, which may
// be nil. A null result is returned as ErrNotFound.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	raw, err := c.call(ctx, method, params)
	if err != nil {
		return err
	}
	if isNull(raw) {
		return ErrNotFound
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (raw json.RawMessage, err error) {
	started := time.Now()
	defer func() { metrics.ObserveRPC(method, err, started) }()

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	n := len(c.endpoints)
	start := int((c.next.Add(1) - 1) % uint64(n))

	var lastErr error
	for i := 0; i < n; i++ {
		slot := (start + i) % n

		raw, err := c.callEndpoint(ctx, slot, method, body)
		if err == nil {
			return raw, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err

		if IsThrottled(err) {
			metrics.RPCThrottled(method)
			c.logger.WithFields(logrus.Fields{
				"method": method,
				"slot":   slot,
			}).Warn("rpc credential throttled, rotating")
			continue
		}
		if !IsTransient(err) {
			return nil, fmt.Errorf("%s: %w", method, err)
		}

		c.logger.WithFields(logrus.Fields{
			"method": method,
			"slot":   slot,
		}).WithError(err).Warn("rpc credential failed after retries, rotating")
	}

	return nil, &ExhaustedError{Method: method, Credentials: n, Last: lastErr}
}

// callEndpoint retries transient failures against one credential.
func (c *Client) callEndpoint(ctx context.Context, slot int, method string, body []byte) (json.RawMessage, error) {
	var raw json.RawMessage

	onRetry := func(attempt int, delay time.Duration, err error) {
		metrics.RPCRetry(method)
		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": delay,
			"method":  method,
			"slot":    slot,
		}).WithError(err).Debug("retrying RPC call")
	}

	err := Retry(ctx, c.clock, c.backoff, IsTransient, onRetry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		res, err := c.doRequest(ctx, c.endpoints[slot], body)
		if err != nil {
			return err
		}
		raw = res
		return nil
	})
	return raw, err
}

func (c *Client) doRequest(ctx context.Context, endpoint string, data []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	if envelope.Result == nil {
		return json.RawMessage("null"), nil
	}
	return envelope.Result, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// GetTransaction fetches a transaction in "json" encoding. The result is kept
// byte for byte so it can be dead-lettered and replayed.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*RawTransaction, error) {
	params := []any{
		signature,
		map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	raw, err := c.call(ctx, "getTransaction", params)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	return &RawTransaction{Signature: signature, Result: raw}, nil
}

// GetSignaturesForAddress fetches signatures for an address, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, opts SignaturesOptions) ([]SignatureInfo, error) {
	var result []SignatureInfo
	err := c.Call(ctx, "getSignaturesForAddress", []any{address, opts.params()}, &result)
	if errors.Is(err, ErrNotFound) {
		return []SignatureInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetProgramAccounts returns the accounts owned by programID matching every
// filter, with data decoded from base64.
func (c *Client) GetProgramAccounts(ctx context.Context, programID string, filters []Filter) ([]AccountRecord, error) {
	opts := map[string]any{
		"encoding":   "base64",
		"commitment": "confirmed",
	}
	if len(filters) > 0 {
		opts["filters"] = filters
	}

	var result solanarpc.GetProgramAccountsResult
	err := c.Call(ctx, "getProgramAccounts", []any{programID, opts}, &result)
	if errors.Is(err, ErrNotFound) {
		return []AccountRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]AccountRecord, 0, len(result))
	for _, keyed := range result {
		if keyed == nil || keyed.Account == nil {
			continue
		}
		rec := AccountRecord{
			Address: keyed.Pubkey.String(),
			Owner:   keyed.Account.Owner.String(),
		}
		if keyed.Account.Data != nil {
			rec.Data = keyed.Account.Data.GetBinary()
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetTokenAccountBalance returns the raw amount and decimals of a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (uint64, uint8, error) {
	var result tokenAccountBalanceResult
	if err := c.Call(ctx, "getTokenAccountBalance", []any{account}, &result); err != nil {
		return 0, 0, err
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid amount format: %w", err)
	}
	return amount, result.Value.Decimals, nil
}

// MemcmpFilter matches accounts whose data at offset equals the base58 address.
func MemcmpFilter(offset uint64, address string) (Filter, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid memcmp address %q: %w", address, err)
	}
	return Filter{Memcmp: &solanarpc.RPCFilterMemcmp{Offset: offset, Bytes: solana.Base58(pk.Bytes())}}, nil
}

// DataSizeFilter matches accounts of exactly size bytes.
func DataSizeFilter(size uint64) Filter {
	return Filter{DataSize: size}
}
