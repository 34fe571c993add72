package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/credence/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// walletFor derives a unique 0x-prefixed wallet address for a run.
func walletFor(runID string, index int) string {
	return fmt.Sprintf("0x%s%08x", strings.ReplaceAll(runID, "-", ""), index)
}

// registerUsers creates config.Users accounts concurrently.
func registerUsers(ctx context.Context, config *Config, client *HTTPClient, stats *Stats) ([]User, error) {
	log := logger.Get()
	runID := uuid.NewString()
	log.Info(ctx, "registering users", logger.Int("users", config.Users), logger.String("run", runID))

	users := make([]User, config.Users)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for i := range users {
		g.Go(func() error {
			body := map[string]string{
				"wallet_address": walletFor(runID, i),
				"username":       fmt.Sprintf("load-%d", i),
			}
			status, err := client.postJSON(gctx, "/users", body, &users[i])
			if err != nil {
				return fmt.Errorf("register user %d: %w", i, err)
			}
			if status != http.StatusCreated {
				return fmt.Errorf("register user %d: %w: %d", i, errStatus, status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.UsersRegistered = len(users)
	log.Info(ctx, "registered users", logger.Int("count", len(users)))
	return users, nil
}

// planBonuses lays out every bonus submission in shuffled order. Each distinct
// period appears once plus config.Replays times flagged as replays.
func planBonuses(config *Config, users []User) []Bonus {
	plan := make([]Bonus, 0, len(users)*config.BonusesPerUser*(1+config.Replays))
	for i, u := range users {
		for p := 0; p < config.BonusesPerUser; p++ {
			period := fmt.Sprintf("load-%04d", p)
			plan = append(plan, Bonus{UserIndex: i, UserID: u.ID, Period: period})
			for r := 0; r < config.Replays; r++ {
				plan = append(plan, Bonus{UserIndex: i, UserID: u.ID, Period: period, Replay: true})
			}
		}
	}
	rand.Shuffle(len(plan), func(i, j int) { plan[i], plan[j] = plan[j], plan[i] })
	return plan
}
