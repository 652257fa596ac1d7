// Package stream listens for log notifications over the node's websocket
// endpoint so followers can poll as soon as a watched mint is touched.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Notification is one logsNotification for a subscribed mint.
type Notification struct {
	Mint      string
	Signature string
	Slot      uint64
	Failed    bool
}

// LogStream subscribes to logsSubscribe with a mentions filter per mint.
type LogStream struct {
	endpoint          string
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	logger            *logrus.Logger
}

// LogStreamConfig holds configuration for the log stream
type LogStreamConfig struct {
	Endpoint          string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	Logger            *logrus.Logger
}

// NewLogStream creates a log stream
func NewLogStream(cfg LogStreamConfig) (*LogStream, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("websocket endpoint is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &LogStream{
		endpoint:          cfg.Endpoint,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay:    cfg.ReconnectDelay,
		maxReconnectDelay: cfg.MaxReconnectDelay,
		readTimeout:       cfg.ReadTimeout,
		writeTimeout:      cfg.WriteTimeout,
		logger:            cfg.Logger,
	}, nil
}

// Run subscribes to every mint and calls handle for each notification until
// ctx is done. Dropped connections are redialed with doubling delay.
func (s *LogStream) Run(ctx context.Context, mints []string, handle func(Notification)) error {
	if len(mints) == 0 {
		return fmt.Errorf("no mints to subscribe")
	}

	delay := s.reconnectDelay
	for {
		connected, err := s.session(ctx, mints, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = s.reconnectDelay
		}
		s.logger.WithError(err).WithField("retry_in", delay).Warn("log stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxReconnectDelay {
			delay = s.maxReconnectDelay
		}
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (s *LogStream) session(ctx context.Context, mints []string, handle func(Notification)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	pending := make(map[uint64]string, len(mints))
	for i, mint := range mints {
		id := uint64(i + 1)
		pending[id] = mint
		req := request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "logsSubscribe",
			Params: []any{
				map[string][]string{"mentions": {mint}},
				map[string]string{"commitment": "confirmed"},
			},
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteJSON(req); err != nil {
			return true, fmt.Errorf("write subscribe: %w", err)
		}
	}

	subs := make(map[int64]string, len(mints))
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		var m message
		if err := json.Unmarshal(msg, &m); err != nil {
			s.logger.WithError(err).Debug("skipping unreadable websocket message")
			continue
		}

		switch {
		case m.Error != nil:
			s.logger.WithFields(logrus.Fields{
				"id":      m.ID,
				"mint":    pending[m.ID],
				"code":    m.Error.Code,
				"message": m.Error.Message,
			}).Error("subscription rejected")
		case m.Method == "logsNotification" && m.Params != nil:
			mint, ok := subs[m.Params.Subscription]
			if !ok {
				continue
			}
			handle(Notification{
				Mint:      mint,
				Signature: m.Params.Result.Value.Signature,
				Slot:      m.Params.Result.Context.Slot,
				Failed:    len(m.Params.Result.Value.Err) > 0 && string(m.Params.Result.Value.Err) != "null",
			})
		case m.ID != 0 && m.Result != nil:
			mint, ok := pending[m.ID]
			if !ok {
				continue
			}
			delete(pending, m.ID)
			subs[*m.Result] = mint
			s.logger.WithFields(logrus.Fields{
				"mint":         mint,
				"subscription": *m.Result,
			}).Debug("subscribed to mint logs")
		}
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// message covers both subscription replies and notifications.
type message struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Result *int64 `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}
