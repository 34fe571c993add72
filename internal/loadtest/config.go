package loadtest

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Users          int           // Number of users to register
	BonusesPerUser int           // Distinct bonus periods per user
	Replays        int           // Extra submissions of every bonus
	TopN           int           // Number of leaderboard entries to fetch
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Output file for the run report
	Verbose        bool          // Log per-request failures
}

// Bonus is one consistency bonus submission.
type Bonus struct {
	UserIndex int    `json:"-"`
	UserID    string `json:"user_id"`
	Period    string `json:"period"`
	Replay    bool   `json:"replay"`
}

// User is the subset of a registered user the run tracks.
type User struct {
	ID              string `json:"id"`
	WalletAddress   string `json:"wallet_address"`
	ReputationScore int64  `json:"reputation_score"`
}

// Event is the ledger event returned for an applied bonus.
type Event struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AppliedDelta int64  `json:"applied_delta"`
	ScoreAfter   int64  `json:"score_after"`
	SourceRef    string `json:"source_ref"`
}

// Entry is a leaderboard or rank entry.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"reputation_score"`
}

// Audit is a user's ledger audit report.
type Audit struct {
	UserID     string `json:"user_id"`
	Score      int64  `json:"score"`
	SumApplied int64  `json:"sum_applied"`
	Events     int    `json:"events"`
	Consistent bool   `json:"consistent"`
}

// Stats holds run statistics.
type Stats struct {
	UsersRegistered    int           `json:"users_registered"`
	BonusesSubmitted   int           `json:"bonuses_submitted"`
	BonusesApplied     int           `json:"bonuses_applied"`
	BonusesDuplicate   int           `json:"bonuses_duplicate"`
	BonusesFailed      int           `json:"bonuses_failed"`
	RanksRetrieved     int           `json:"ranks_retrieved"`
	AuditsConsistent   int           `json:"audits_consistent"`
	LeaderboardEntries int           `json:"leaderboard_entries"`
	Mismatches         []string      `json:"mismatches,omitempty"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	Duration           time.Duration `json:"duration"`
}
