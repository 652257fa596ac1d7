package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-dump-indexer/internal/config"
)

// globalOptions apply to every command; everything else comes from the
// environment via config.Load.
type globalOptions struct {
	Verbose bool `short:"v" long:"verbose" description:"enable debug logging"`
	Memory  bool `long:"memory" description:"keep all state in process memory instead of Postgres, ClickHouse and Redis"`
}

// cli is shared by every command.
type cli struct {
	ctx    context.Context
	opts   *globalOptions
	logger *logrus.Logger
	cfg    *config.Config
}

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Debugf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	loadEnv(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &globalOptions{}
	c := &cli{ctx: ctx, opts: opts, logger: logger}

	parser := flags.NewParser(opts, flags.Default)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if opts.Verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
		c.cfg = config.Load()
		if err := c.cfg.Validate(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}

	mustAdd(parser, "ingest", "Ingest a mint's history", "Discover signatures of a mint, store its transactions and price samples, and optionally run dump detection.", &ingestCommand{cli: c})
	mustAdd(parser, "replay", "Replay dead letters", "Retry the retryable dead letters of a mint, or of every mint.", &replayCommand{cli: c})
	mustAdd(parser, "detect", "Find a mint's first dump", "Scan the stored price history of a mint for its first dump.", &detectCommand{cli: c})
	mustAdd(parser, "pools", "Show a mint's pools", "Discover the pools trading a mint against the quote assets.", &poolsCommand{cli: c})
	mustAdd(parser, "follow", "Follow watched mints", "Poll the watchlist for new signatures, ingest them and detect dumps.", &followCommand{cli: c})

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted")
			return
		}
		logger.WithError(err).Fatal("indexer failed")
	}
}

func mustAdd(parser *flags.Parser, name, short, long string, cmd any) {
	if _, err := parser.AddCommand(name, short, long, cmd); err != nil {
		panic(err)
	}
}
