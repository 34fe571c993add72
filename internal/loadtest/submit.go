package loadtest

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/credence/pkg/logger"
)

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitBonuses submits plan concurrently and returns the applied delta
// total per user index.
func submitBonuses(ctx context.Context, config *Config, client *HTTPClient, users []User, plan []Bonus, stats *Stats) []int64 {
	log := logger.Get()
	log.Info(ctx, "submitting bonuses", logger.Int("bonuses", len(plan)), logger.Int("workers", config.Workers))

	applied := make([]atomic.Int64, len(users))
	var (
		successful int64
		duplicate  int64
		failed     int64
		submitted  int64
		lastReport atomic.Int64
	)
	reportInterval := time.Second

	bonusChan := make(chan Bonus, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range bonusChan {
				var ev Event
				switch submitSingleBonus(ctx, client, b, &ev) {
				case outcomeApplied:
					atomic.AddInt64(&successful, 1)
					applied[b.UserIndex].Add(ev.AppliedDelta)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				default:
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Warn(ctx, "bonus submission failed", logger.String("user", b.UserID), logger.String("period", b.Period))
					}
				}
				total := atomic.AddInt64(&submitted, 1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(reportInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "submission progress",
						logger.Int64("submitted", total),
						logger.Int("total", len(plan)),
						logger.Int64("applied", atomic.LoadInt64(&successful)),
						logger.Int64("duplicate", atomic.LoadInt64(&duplicate)),
						logger.Int64("failed", atomic.LoadInt64(&failed)))
				}
			}
		}()
	}

	go func() {
		defer close(bonusChan)
		for _, b := range plan {
			select {
			case <-ctx.Done():
				return
			case bonusChan <- b:
			}
		}
	}()
	wg.Wait()

	stats.BonusesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.BonusesApplied = int(atomic.LoadInt64(&successful))
	stats.BonusesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.BonusesFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "bonus submission completed",
		logger.Int("applied", stats.BonusesApplied),
		logger.Int("duplicate", stats.BonusesDuplicate),
		logger.Int("failed", stats.BonusesFailed))

	out := make([]int64, len(users))
	for i := range applied {
		out[i] = applied[i].Load()
	}
	return out
}

// submitSingleBonus posts one bonus. 201 is a fresh application and 409 a
// replay the ledger already holds.
func submitSingleBonus(ctx context.Context, client *HTTPClient, b Bonus, ev *Event) outcome {
	status, err := client.postJSON(ctx, "/users/"+b.UserID+"/consistency-bonus", map[string]string{"period": b.Period}, ev)
	if err != nil {
		return outcomeFailed
	}
	switch status {
	case http.StatusCreated:
		return outcomeApplied
	case http.StatusConflict:
		return outcomeDuplicate
	default:
		return outcomeFailed
	}
}
