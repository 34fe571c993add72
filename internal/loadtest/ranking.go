package loadtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/credence/pkg/logger"
)

// Snapshot is what the service reports for one user after the run.
type Snapshot struct {
	Rank  Entry
	Audit Audit
	Err   error
}

// retrieveSnapshots fetches rank and audit for every user concurrently.
func retrieveSnapshots(ctx context.Context, config *Config, client *HTTPClient, users []User, stats *Stats) []Snapshot {
	log := logger.Get()
	log.Info(ctx, "retrieving ranks and audits", logger.Int("users", len(users)), logger.Int("workers", config.Workers))

	snaps := make([]Snapshot, len(users))
	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				snaps[index] = retrieveSingleSnapshot(ctx, client, users[index].ID)
				if snaps[index].Err != nil && config.Verbose {
					log.Warn(ctx, "snapshot failed", logger.String("user", users[index].ID), logger.Error(snaps[index].Err))
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range users {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()
	wg.Wait()

	for _, s := range snaps {
		if s.Err == nil && s.Rank.UserID != "" {
			stats.RanksRetrieved++
		}
	}
	log.Info(ctx, "snapshot retrieval completed", logger.Int("retrieved", stats.RanksRetrieved))
	return snaps
}

func retrieveSingleSnapshot(ctx context.Context, client *HTTPClient, userID string) Snapshot {
	var s Snapshot
	if err := client.getJSON(ctx, "/rank/"+userID, &s.Rank); err != nil {
		s.Err = fmt.Errorf("rank: %w", err)
		return s
	}
	if err := client.getJSON(ctx, "/users/"+userID+"/audit", &s.Audit); err != nil {
		s.Err = fmt.Errorf("audit: %w", err)
	}
	return s
}

// getLeaderboard retrieves the top N leaderboard entries.
func getLeaderboard(ctx context.Context, config *Config, client *HTTPClient, stats *Stats) ([]Entry, error) {
	logger.Get().Info(ctx, "fetching leaderboard", logger.Int("topN", config.TopN))

	var leaderboard []Entry
	if err := client.getJSON(ctx, fmt.Sprintf("/leaderboard?limit=%d", config.TopN), &leaderboard); err != nil {
		return nil, err
	}
	stats.LeaderboardEntries = len(leaderboard)
	return leaderboard, nil
}
