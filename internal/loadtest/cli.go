package loadtest

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/credence/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger on stdout, teeing into logFile when
// one is given. The returned closer releases the file.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		if err := logger.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Credence Load Tool
==================

Registers users, submits consistency bonuses concurrently (replaying each one
to exercise source idempotence) and verifies scores, audits and the
leaderboard afterwards.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of users to register (default 200)
  -bonuses int
        Distinct bonus periods per user (default 10)
  -replays int
        Extra submissions of every bonus (default 2)
  -top int
        Number of leaderboard entries to fetch (default 50)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        JSON report file (default: none)
  -log string
        Log file, in addition to stdout (default: none)
  -verbose
        Log per-request failures
  -help
        Show this help message

Examples:
  go run ./cmd/loadtest -users 1000 -bonuses 20 -workers 32
  go run ./cmd/loadtest -url http://localhost:8080 -output report.json
`)
}
