// Package loadgen drives a running points service over HTTP: it registers
// users, submits awards concurrently and checks that the global board
// converges to the totals it expects.
package loadgen

import "time"

// Config holds the load run parameters.
type Config struct {
	BaseURL     string        // service base URL
	Users       int           // users to register
	Awards      int           // awards to submit
	Communities int           // communities awards are spread over
	MaxPoints   int64         // upper bound of a generated award
	TopN        int           // global board depth to verify
	Workers     int           // concurrent HTTP workers
	Timeout     time.Duration // per-request timeout
	Settle      time.Duration // how long to wait for the queue to drain
	Seed        uint64        // generator seed; 0 picks one from the clock
	Verbose     bool
}

// Stats summarises a run.
type Stats struct {
	UsersRegistered int
	AwardsSubmitted int
	AwardsAccepted  int
	AwardsDuplicate int
	AwardsRejected  int
	AwardsThrottled int
	TotalsVerified  int
	BoardEntries    int
	ExpectedPoints  int64
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	SettleDuration  time.Duration
}

// award is the body of POST /awards as the generator builds it.
type award struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	CommunityID  string `json:"community_id,omitempty"`
	ActionKey    string `json:"action_key"`
	CustomPoints int64  `json:"custom_points"`
}

// registration is the body of POST /users.
type registration struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type user struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	TotalPoints int64  `json:"total_points"`
}

type ack struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
	Duplicate    bool   `json:"duplicate"`
}

type boardEntry struct {
	Rank   int   `json:"rank"`
	User   user  `json:"user"`
	Points int64 `json:"points"`
}
