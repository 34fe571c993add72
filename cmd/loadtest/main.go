package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/credence/internal/loadtest"
)

// Default configuration constants.
const (
	defaultUsers       = 200
	defaultBonuses     = 10
	defaultReplays     = 2
	defaultTopN        = 50
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of users to register")
		bonuses    = flag.Int("bonuses", defaultBonuses, "Distinct bonus periods per user")
		replays    = flag.Int("replays", defaultReplays, "Extra submissions of every bonus")
		topN       = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "JSON report file")
		logFile    = flag.String("log", "", "Log file, in addition to stdout")
		verbose    = flag.Bool("verbose", false, "Log per-request failures")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp(os.Stdout)
		return
	}

	closer, err := loadtest.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	config := &loadtest.Config{
		BaseURL:        *baseURL,
		Users:          *users,
		BonusesPerUser: *bonuses,
		Replays:        *replays,
		TopN:           *topN,
		Workers:        *workers,
		Timeout:        *timeout,
		OutputFile:     *outputFile,
		Verbose:        *verbose,
	}

	if _, err := loadtest.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		cancel()
		stop()
		os.Exit(1)
	}
}
