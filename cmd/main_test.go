package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/credence/internal/adapters/http/api"
	"github.com/okian/credence/internal/adapters/http/swagger"
	app "github.com/okian/credence/internal/app"
	"github.com/okian/credence/internal/config"
	"github.com/okian/credence/pkg/logger"
	"github.com/okian/credence/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func testLogger() logger.Logger {
	l, err := logger.New(logger.WithOutput(io.Discard))
	if err != nil {
		panic(err)
	}
	return l
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given a default configuration", t, func() {
		if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
			t.Fatal(err)
		}
		cfg := config.New(context.Background())

		convey.Convey("When building the service options", func() {
			opts, err := serviceOptions(cfg, testLogger())

			convey.Convey("Then a memory backed service starts", func() {
				convey.So(err, convey.ShouldBeNil)
				svc := app.New(opts...)
				defer svc.Stop()
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				stats := svc.GetStats()
				convey.So(stats["store"], convey.ShouldEqual, "memory")
				convey.So(stats["retryWorkers"], convey.ShouldEqual, cfg.RetryWorkerCount)
			})
		})

		convey.Convey("When the store is sqlite", func() {
			cfg.StorageDriver = "sqlite"
			cfg.StorageDSN = filepath.Join(t.TempDir(), "credence.db")
			opts, err := serviceOptions(cfg, testLogger())

			convey.Convey("Then the service uses it", func() {
				convey.So(err, convey.ShouldBeNil)
				svc := app.New(opts...)
				defer svc.Stop()
				convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
				convey.So(svc.GetStats()["store"], convey.ShouldEqual, "sqlite")
			})
		})

		convey.Convey("When the chain is enabled without a module address", func() {
			cfg.ChainEnabled = true
			_, err := serviceOptions(cfg, testLogger())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "chain client")
			})
		})

		convey.Convey("When the chain is configured", func() {
			cfg.ChainEnabled = true
			cfg.ChainModuleAddress = "0x1"
			opts, err := serviceOptions(cfg, testLogger())

			convey.Convey("Then the options include it", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(app.New(opts...), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a supabase url is set without a key", func() {
			cfg.SupabaseURL = "http://localhost:54321"
			_, err := serviceOptions(cfg, testLogger())

			convey.Convey("Then building fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "score mirror")
			})
		})

		convey.Convey("When the storage driver is unknown", func() {
			cfg.StorageDriver = "mongo"
			_, err := serviceOptions(cfg, testLogger())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		t.Setenv("CREDENCE_ADDR", "127.0.0.1:0")
		t.Setenv("CREDENCE_LOG_LEVEL", "error")
		t.Chdir(t.TempDir())

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			err := run(ctx)

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("CREDENCE_STORAGE_DRIVER", "postgres")
			err := run(context.Background())

			convey.Convey("Then run fails before serving", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "load config")
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given the routed HTTP server", t, func() {
		if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
			t.Fatal(err)
		}
		svc := app.New()
		mux := http.NewServeMux()
		api.NewServer(svc, svc, 100).Register(context.Background(), mux)
		swagger.Register(context.Background(), mux)
		srv := newHTTPServer(":0", mux)

		convey.Convey("Then it carries the configured timeouts", func() {
			convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
			convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
			convey.So(srv.IdleTimeout, convey.ShouldEqual, idleTimeout)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
		})

		convey.Convey("Then it serves health checks", func() {
			ts := httptest.NewServer(srv.Handler)
			defer ts.Close()
			resp, err := http.Get(ts.URL + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then it serves the API document", func() {
			ts := httptest.NewServer(srv.Handler)
			defer ts.Close()
			resp, err := http.Get(ts.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
			t.Fatal(err)
		}
		convey.So(metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry())), convey.ShouldNotBeNil)

		convey.Convey("Then one update pass does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			svc := app.New()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loops stop with their context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, app.New())
				close(done)
			}()
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}

func TestInitMetrics(t *testing.T) {
	convey.Convey("Given metrics settings in the configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "acme"
		cfg.MetricsRefreshMS = 1500

		convey.Convey("When the metrics are initialized", func() {
			initMetrics(cfg)
			metrics.UpdateUsersTotal(4)

			convey.Convey("Then the served registry uses the configured names", func() {
				families, err := metrics.GetRegistry().Gather()
				convey.So(err, convey.ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, mf := range families {
					names = append(names, mf.GetName())
				}
				convey.So(names, convey.ShouldContain, "acme_reputation_users_total")
				convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 1500*time.Millisecond)
			})
		})
	})
}

func TestMs(t *testing.T) {
	convey.Convey("ms converts milliseconds", t, func() {
		convey.So(ms(250), convey.ShouldEqual, 250*time.Millisecond)
		convey.So(ms(0), convey.ShouldEqual, time.Duration(0))
	})
}
