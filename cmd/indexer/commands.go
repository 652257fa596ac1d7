package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/ingest"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/metrics"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/stream"
	"github.com/aman-zulfiqar/solana-dump-indexer/internal/watchlist"
)

type mintArg struct {
	Mint string `positional-arg-name:"mint" required:"yes" description:"token mint address"`
}

func (m mintArg) validate() error {
	return watchlist.ValidateMint(m.Mint)
}

type ingestCommand struct {
	cli *cli

	Limit         int  `short:"n" long:"limit" description:"maximum number of signatures to discover (0 = whole history)" default:"1000"`
	TokenAccounts bool `long:"token-accounts" description:"also walk the history of the mint's token accounts"`
	Detect        bool `long:"detect" description:"run dump detection after ingesting"`

	Args mintArg `positional-args:"yes"`
}

func (c *ingestCommand) Execute([]string) error {
	if err := c.Args.validate(); err != nil {
		return err
	}

	a, err := newApp(c.cli)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(c.cli)
	if err != nil {
		return err
	}

	report, err := p.Ingest(c.cli.ctx, c.Args.Mint, ingest.DiscoverOptions{
		TotalLimit:           c.Limit,
		IncludeTokenAccounts: c.TokenAccounts,
		OldestFirst:          true,
	})
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}

	if !c.Detect {
		return nil
	}
	return detect(c.cli, a, c.Args.Mint)
}

type replayCommand struct {
	cli *cli

	Mint string `long:"mint" description:"only replay dead letters of this mint"`
}

func (c *replayCommand) Execute([]string) error {
	if c.Mint != "" {
		if err := watchlist.ValidateMint(c.Mint); err != nil {
			return err
		}
	}

	a, err := newApp(c.cli)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(c.cli)
	if err != nil {
		return err
	}

	report, err := p.ReplayDeadLetters(c.cli.ctx, c.Mint)
	if err != nil {
		return err
	}
	return printJSON(report)
}

type detectCommand struct {
	cli *cli

	Args mintArg `positional-args:"yes"`
}

func (c *detectCommand) Execute([]string) error {
	if err := c.Args.validate(); err != nil {
		return err
	}

	a, err := newApp(c.cli)
	if err != nil {
		return err
	}
	defer a.Close()

	return detect(c.cli, a, c.Args.Mint)
}

func detect(c *cli, a *app, mint string) error {
	d, err := a.detector(c)
	if err != nil {
		return err
	}

	rec, err := d.FindFirstDump(c.ctx, mint)
	if err != nil {
		return err
	}
	if rec == nil {
		c.logger.WithField("mint", mint).Info("no dump found")
		return nil
	}
	return printJSON(rec)
}

type poolsCommand struct {
	cli *cli

	Refresh  bool `long:"refresh" description:"bypass the pool cache"`
	Reserves bool `long:"reserves" description:"read current vault balances and spot price"`

	Args mintArg `positional-args:"yes"`
}

func (c *poolsCommand) Execute([]string) error {
	if err := c.Args.validate(); err != nil {
		return err
	}

	a, err := newApp(c.cli)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.registry()
	if err != nil {
		return err
	}

	ctx := c.cli.ctx
	find := reg.FindPools
	if c.Refresh {
		find = reg.Refresh
	}
	found, err := find(ctx, c.Args.Mint)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		c.cli.logger.WithField("mint", c.Args.Mint).Info("no known pool")
		return nil
	}

	for _, p := range found {
		if err := printJSON(p); err != nil {
			return err
		}
		if !c.Reserves {
			continue
		}

		state, err := reg.Reserves(ctx, p)
		if err != nil {
			return err
		}
		fields := logrus.Fields{
			"pool":      p.Address,
			"reserve_a": state.ReserveA,
			"reserve_b": state.ReserveB,
		}
		if price, err := state.SpotPrice(c.cli.cfg.QuoteMint); err == nil {
			fields["spot_price"] = price
		}
		c.cli.logger.WithFields(fields).Info("pool reserves")
	}
	return nil
}

type followCommand struct {
	cli *cli

	Mints []string `long:"mint" description:"add a mint to the watchlist before following (repeatable)"`
	Once  bool     `long:"once" description:"poll once and exit"`
}

func (c *followCommand) Execute([]string) error {
	a, err := newApp(c.cli)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := c.cli.ctx
	for _, m := range c.Mints {
		if _, err := a.watchlist.Upsert(ctx, m, ""); err != nil {
			return fmt.Errorf("failed to watch %s: %w", m, err)
		}
	}

	p, err := a.pipeline(c.cli)
	if err != nil {
		return err
	}
	d, err := a.detector(c.cli)
	if err != nil {
		return err
	}

	f, err := ingest.NewFollower(ingest.FollowerConfig{
		Pipeline:     p,
		Watchlist:    a.watchlist,
		Detector:     d,
		PollInterval: c.cli.cfg.PollInterval,
		Workers:      c.cli.cfg.Workers,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	if c.Once {
		return f.Poll(ctx)
	}

	stopMetrics := serveMetrics(c.cli)
	defer stopMetrics()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.Start(gctx) })
	if url := c.cli.cfg.WebsocketURL; url != "" {
		if err := c.streamLogs(gctx, g, a, f, url); err != nil {
			return err
		}
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// streamLogs wakes the follower whenever a watched mint shows up in a
// confirmed transaction's logs.
func (c *followCommand) streamLogs(ctx context.Context, g *errgroup.Group, a *app, f *ingest.Follower, url string) error {
	entries, err := a.watchlist.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list watchlist: %w", err)
	}
	if len(entries) == 0 {
		a.logger.Warn("watchlist is empty, log stream disabled")
		return nil
	}
	mints := make([]string, 0, len(entries))
	for _, e := range entries {
		mints = append(mints, e.Mint)
	}

	s, err := stream.NewLogStream(stream.LogStreamConfig{Endpoint: url, Logger: a.logger})
	if err != nil {
		return err
	}
	g.Go(func() error {
		return s.Run(ctx, mints, func(n stream.Notification) {
			if n.Failed {
				return
			}
			a.logger.WithFields(logrus.Fields{
				"mint":      n.Mint,
				"signature": n.Signature,
			}).Debug("mint activity, waking follower")
			f.Wake()
		})
	})
	return nil
}

// serveMetrics exposes Prometheus metrics until the returned func is called.
func serveMetrics(c *cli) func() {
	if c.cfg.MetricsAddr == "" {
		return func() {}
	}

	srv := &http.Server{
		Addr:              c.cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		c.logger.WithField("addr", c.cfg.MetricsAddr).Info("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.WithError(err).Error("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
