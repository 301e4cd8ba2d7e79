// Package history persists the outcome of finished matches.
package history

import (
	"context"
	"time"
)

// Record is the result handed off when a match terminates. WinnerID is empty when nobody won.
type Record struct {
	MatchID     string             `json:"matchId"`
	Player1ID   string             `json:"player1Id"`
	Player2ID   string             `json:"player2Id"`
	WinnerID    string             `json:"winnerId,omitempty"`
	TowerHealth map[string]float64 `json:"towerHealth"`
	Reason      string             `json:"reason"`
	EndedAt     time.Time          `json:"endedAt"`
}

// Sink stores match results. Implementations must be safe for concurrent use.
type Sink interface {
	PersistMatchResult(ctx context.Context, record Record) error
	Close() error
}

// NopSink drops every record.
type NopSink struct{}

func (NopSink) PersistMatchResult(context.Context, Record) error { return nil }

func (NopSink) Close() error { return nil }
