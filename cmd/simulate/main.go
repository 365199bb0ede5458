package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/ascent/internal/simulate"
	"github.com/okian/ascent/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers      = 25
	defaultDays       = 14
	defaultMaxPerDay  = 4
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users     = flag.Int("users", defaultUsers, "Number of synthetic users")
		days      = flag.Int("days", defaultDays, "Number of simulated calendar days")
		maxPerDay = flag.Int("max-per-day", defaultMaxPerDay, "Max events per user per active day")
		workers   = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent submitters")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		sweeps    = flag.Bool("sweeps", true, "Run the daily sweep between simulated days")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:   *baseURL,
		Users:     *users,
		Days:      *days,
		MaxPerDay: *maxPerDay,
		Workers:   *workers,
		Timeout:   *timeout,
		RunSweeps: *sweeps,
		Verbose:   *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
