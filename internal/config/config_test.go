package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/credence/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have the reputation defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.InitialScore, convey.ShouldEqual, 100)
			convey.So(cfg.ScoreFloor, convey.ShouldEqual, 0)
			convey.So(cfg.TestDelta, convey.ShouldEqual, 50)
			convey.So(cfg.PeerDelta, convey.ShouldEqual, 30)
			convey.So(cfg.ProjectDelta, convey.ShouldEqual, 70)
			convey.So(cfg.CompletionDelta, convey.ShouldEqual, 25)
			convey.So(cfg.DisputePenalty, convey.ShouldEqual, -100)
			convey.So(cfg.RetryWorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "credence")
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"unknown driver", func(c *config.Config) { c.StorageDriver = "mongo" }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"initial below floor", func(c *config.Config) { c.ScoreFloor = 200 }},
			{"zero base rate", func(c *config.Config) { c.EndorsementBaseRate = 0 }},
			{"negative delta", func(c *config.Config) { c.ProjectDelta = -1 }},
			{"no peers", func(c *config.Config) { c.MinPeerApprovals = 0 }},
			{"single attempt", func(c *config.Config) { c.ApplyMaxAttempts = 1 }},
			{"no workers", func(c *config.Config) { c.RetryWorkerCount = 0 }},
			{"chain without module", func(c *config.Config) { c.ChainEnabled = true }},
			{"supabase without key", func(c *config.Config) { c.SupabaseURL = "https://x.supabase.co" }},
			{"empty metrics namespace", func(c *config.Config) { c.MetricsNamespace = " " }},
			{"negative metrics refresh", func(c *config.Config) { c.MetricsRefreshMS = -1 }},
		}

		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)

				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
