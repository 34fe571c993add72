// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and match the koanf tags below.
// - New builds a Config with defaults; Load layers file and env on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// StorageDriver selects the store: memory, sqlite or postgres.
	StorageDriver string `koanf:"storage_driver"`
	StorageDSN    string `koanf:"storage_dsn"`
	MaxOpenConns  int    `koanf:"storage_max_open_conns"`
	AutoMigrate   bool   `koanf:"storage_auto_migrate"`

	// InitialScore is the reputation new users start with.
	InitialScore int64 `koanf:"initial_score"`

	// ScoreFloor is the minimum reputation; deltas are clamped to it.
	ScoreFloor int64 `koanf:"score_floor"`

	// EndorsementBaseRate scales an endorser's reputation into weight.
	EndorsementBaseRate float64 `koanf:"endorsement_base_rate"`

	// Verification deltas per type on approval.
	TestDelta    int64 `koanf:"test_delta"`
	PeerDelta    int64 `koanf:"peer_delta"`
	ProjectDelta int64 `koanf:"project_delta"`

	// MinPeerApprovals is the panel size a peer verification needs.
	MinPeerApprovals int `koanf:"min_peer_approvals"`

	// MinReviewerReputation gates who may answer a peer request.
	MinReviewerReputation int64 `koanf:"min_reviewer_reputation"`

	CompletionDelta  int64 `koanf:"completion_delta"`
	DisputePenalty   int64 `koanf:"dispute_penalty"`
	ConsistencyBonus int64 `koanf:"consistency_bonus"`

	// Ledger retry bounds for transient store failures.
	ApplyMaxAttempts  int `koanf:"apply_max_attempts"`
	ApplyBackoffMS    int `koanf:"apply_backoff_ms"`
	ApplyMaxBackoffMS int `koanf:"apply_max_backoff_ms"`

	// Retry queue for endorsements whose ledger update failed.
	RetryQueueSize   int `koanf:"retry_queue_size"`
	RetryWorkerCount int `koanf:"retry_worker_count"`
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBackoffMS   int `koanf:"retry_backoff_ms"`

	// DedupeSize bounds the in-flight source key cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	ChainEnabled       bool   `koanf:"chain_enabled"`
	ChainNetwork       string `koanf:"chain_network"`
	ChainNodeURL       string `koanf:"chain_node_url"`
	ChainModuleAddress string `koanf:"chain_module_address"`
	ChainTimeoutMS     int    `koanf:"chain_timeout_ms"`

	// Supabase mirror; disabled when SupabaseURL is empty.
	SupabaseURL   string `koanf:"supabase_url"`
	SupabaseKey   string `koanf:"supabase_key"`
	SupabaseTable string `koanf:"supabase_table"`
	MirrorBuffer  int    `koanf:"mirror_buffer"`

	// Prometheus collection; names are namespace_subsystem_metric.
	MetricsEnabled   bool   `koanf:"metrics_enabled"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsRefreshMS int    `koanf:"metrics_refresh_ms"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		Addr:                  ":9080",
		LogLevel:              "info",
		LogFormat:             "text",
		StorageDriver:         "memory",
		MaxOpenConns:          10,
		AutoMigrate:           true,
		InitialScore:          100,
		ScoreFloor:            0,
		EndorsementBaseRate:   0.05,
		TestDelta:             50,
		PeerDelta:             30,
		ProjectDelta:          70,
		MinPeerApprovals:      3,
		MinReviewerReputation: 100,
		CompletionDelta:       25,
		DisputePenalty:        -100,
		ConsistencyBonus:      10,
		ApplyMaxAttempts:      5,
		ApplyBackoffMS:        10,
		ApplyMaxBackoffMS:     500,
		RetryQueueSize:        10_000,
		RetryWorkerCount:      runtime.NumCPU(),
		RetryMaxAttempts:      8,
		RetryBackoffMS:        500,
		DedupeSize:            50_000,
		MaxLeaderboardLimit:   100,
		ChainNetwork:          "testnet",
		ChainTimeoutMS:        10_000,
		SupabaseTable:         "users",
		MirrorBuffer:          1024,
		MetricsEnabled:        true,
		MetricsNamespace:      "credence",
		MetricsSubsystem:      "reputation",
		MetricsRefreshMS:      10_000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !oneOf(c.LogFormat, "text", "json"):
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case !oneOf(c.StorageDriver, "memory", "sqlite", "postgres"):
		return fmt.Errorf("%w: storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	case c.StorageDriver == "postgres" && c.StorageDSN == "":
		return fmt.Errorf("%w: storage_dsn is required for postgres", ErrInvalidConfig)
	case c.InitialScore < c.ScoreFloor:
		return fmt.Errorf("%w: initial_score %d below score_floor %d", ErrInvalidConfig, c.InitialScore, c.ScoreFloor)
	case c.EndorsementBaseRate <= 0:
		return fmt.Errorf("%w: endorsement_base_rate must be positive", ErrInvalidConfig)
	case c.TestDelta < 0 || c.PeerDelta < 0 || c.ProjectDelta < 0:
		return fmt.Errorf("%w: verification deltas must not be negative", ErrInvalidConfig)
	case c.MinPeerApprovals < 1:
		return fmt.Errorf("%w: min_peer_approvals must be at least 1", ErrInvalidConfig)
	case c.CompletionDelta <= 0:
		return fmt.Errorf("%w: completion_delta must be positive", ErrInvalidConfig)
	case c.DisputePenalty == 0:
		return fmt.Errorf("%w: dispute_penalty must not be zero", ErrInvalidConfig)
	case c.ConsistencyBonus < 0:
		return fmt.Errorf("%w: consistency_bonus must not be negative", ErrInvalidConfig)
	case c.ApplyMaxAttempts < 2:
		return fmt.Errorf("%w: apply_max_attempts must be at least 2", ErrInvalidConfig)
	case c.RetryQueueSize < 1 || c.RetryWorkerCount < 1:
		return fmt.Errorf("%w: retry queue needs a size and at least one worker", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.ChainEnabled && c.ChainModuleAddress == "":
		return fmt.Errorf("%w: chain_module_address is required when chain_enabled", ErrInvalidConfig)
	case c.SupabaseURL != "" && c.SupabaseKey == "":
		return fmt.Errorf("%w: supabase_key is required with supabase_url", ErrInvalidConfig)
	case c.MetricsEnabled && strings.TrimSpace(c.MetricsNamespace) == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	case c.MetricsRefreshMS < 0:
		return fmt.Errorf("%w: metrics_refresh_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
