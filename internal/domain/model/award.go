package model

import "time"

// AwardRequest is an award submitted for asynchronous application by the
// outbox workers. SubmissionID makes resubmission idempotent.
type AwardRequest struct {
	SubmissionID string    `json:"submission_id"`
	UserID       string    `json:"user_id"`
	CommunityID  string    `json:"community_id,omitempty"`
	ActionKey    string    `json:"action_key"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	CustomPoints *int64    `json:"custom_points,omitempty"`
	FirstTime    bool      `json:"first_time,omitempty"` // apply at most once per user and community
	SubmittedAt  time.Time `json:"submitted_at"`
}
