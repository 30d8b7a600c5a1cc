// Package store provides data persistence using SQLite.
package store

import (
	"context"
	"time"
)

// Spindle is a completed extended-thinking segment captured from a stream.
type Spindle struct {
	ID           string     `json:"id"`
	SessionID    *string    `json:"sessionId,omitempty"`
	ConnectionID string     `json:"connectionId"`
	BlockIndex   int        `json:"blockIndex"`
	Content      string     `json:"content"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  time.Time  `json:"completedAt"`
	Truncated    bool       `json:"truncated,omitempty"`
	CreatedAt    time.Time  `json:"-"`
	ExpiresAt    *time.Time `json:"-"`
}

// SpindleFilter defines filter criteria for spindle queries.
type SpindleFilter struct {
	SessionID    *string
	ConnectionID *string
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// Stats summarizes captured spindles.
type Stats struct {
	TotalSpindles     int64 `json:"total_spindles"`
	TruncatedSpindles int64 `json:"truncated_spindles"`
	TotalContentBytes int64 `json:"total_content_bytes"`
	Sessions          int64 `json:"sessions"`
}

// Store defines the interface for spindle persistence.
type Store interface {
	SaveSpindle(ctx context.Context, s *Spindle) error
	GetSpindle(ctx context.Context, id string) (*Spindle, error)
	ListSpindles(ctx context.Context, filter SpindleFilter) ([]*Spindle, error)
	GetStats(ctx context.Context) (*Stats, error)

	// Maintenance
	RunRetention(ctx context.Context) (deleted int64, err error)
	Close() error
}
