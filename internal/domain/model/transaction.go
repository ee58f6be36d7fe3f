// Package model contains domain models passed between layers.
package model

import "time"

// PointsTransaction is one immutable ledger row. It is written exactly once
// per awarding event and never updated.
type PointsTransaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CommunityID string    `json:"community_id,omitempty"`
	Points      int64     `json:"points"`
	Reason      string    `json:"reason"`
	ActionKey   string    `json:"action_key,omitempty"` // rule key that produced the award, if any
	ReferenceID string    `json:"reference_id,omitempty"`
	DedupeKey   string    `json:"-"` // unique per store when set; empty means no idempotency guard
	CreatedAt   time.Time `json:"created_at"`
}

// AwardResult is returned by a committed award.
type AwardResult struct {
	Transaction PointsTransaction `json:"transaction"`
	NewTotal    int64             `json:"new_total"`
}

// PointsUpdate is one element of a batch award.
type PointsUpdate struct {
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id,omitempty"`
	Points      int64  `json:"points"`
	Reason      string `json:"reason"`
	ActionKey   string `json:"action_key,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}
