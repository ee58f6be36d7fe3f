// Command loadgen drives a running points service with concurrent awards and
// verifies that the global leaderboard converges to the expected totals.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pointsboard/internal/loadgen"
	"github.com/okian/pointsboard/pkg/logger"
)

const (
	defaultUsers     = 200
	defaultAwards    = 10000
	defaultTopN      = 50
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 30 * time.Second
	defaultSettle    = 2 * time.Minute
	defaultRunLimit  = 10 * time.Minute
	defaultMaxPoints = 50
)

func main() {
	cfg := &loadgen.Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the service")
	flag.IntVar(&cfg.Users, "users", defaultUsers, "users to register")
	flag.IntVar(&cfg.Awards, "awards", defaultAwards, "awards to submit")
	flag.IntVar(&cfg.Communities, "communities", 5, "communities to spread awards over (0 for none)")
	flag.Int64Var(&cfg.MaxPoints, "max-points", defaultMaxPoints, "largest single award")
	flag.IntVar(&cfg.TopN, "top", defaultTopN, "global leaderboard depth to verify")
	flag.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "concurrent HTTP workers")
	flag.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-request timeout")
	flag.DurationVar(&cfg.Settle, "settle", defaultSettle, "how long to wait for queued awards to apply")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "generator seed (0 picks one)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "log every rejected award")
	format := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Named("loadgen")
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	if _, err := loadgen.Run(ctx, cfg, log); err != nil {
		log.Error(ctx, "load run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
