package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/credence/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// Run executes the complete load and consistency run.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting credence load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("bonusesPerUser", config.BonusesPerUser),
		logger.Int("replays", config.Replays),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("topN", config.TopN),
		logger.Bool("verbose", config.Verbose))

	if config.Workers < 1 || config.Users < 1 || config.TopN < 1 {
		return stats, fmt.Errorf("workers, users and top must be positive")
	}
	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	users, err := registerUsers(ctx, config, client, stats)
	if err != nil {
		return stats, fmt.Errorf("user registration failed: %w", err)
	}

	plan := planBonuses(config, users)
	applied := submitBonuses(ctx, config, client, users, plan, stats)

	snaps := retrieveSnapshots(ctx, config, client, users, stats)

	leaderboard, err := getLeaderboard(ctx, config, client, stats)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	verifyErr := verifyResults(ctx, config, users, applied, snaps, leaderboard, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	if config.OutputFile != "" {
		if err := saveReport(ctx, config.OutputFile, stats); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := client.getJSON(ctx, "/healthz", &body); err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("service reports status %q", body.Status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveReport writes the run statistics as JSON.
func saveReport(ctx context.Context, filename string, stats *Stats) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Get().Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, requestsPerSecond float64
	if stats.BonusesSubmitted > 0 {
		successRate = float64(stats.BonusesApplied+stats.BonusesDuplicate) / float64(stats.BonusesSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.BonusesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("usersRegistered", stats.UsersRegistered),
		logger.Int("bonusesSubmitted", stats.BonusesSubmitted),
		logger.Int("bonusesApplied", stats.BonusesApplied),
		logger.Int("bonusesDuplicate", stats.BonusesDuplicate),
		logger.Int("bonusesFailed", stats.BonusesFailed),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("auditsConsistent", stats.AuditsConsistent),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Int("mismatches", len(stats.Mismatches)),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}

