// Package scancache holds the per-user transient RFID state: the one-shot
// latest-scan mailbox polled by clients and the association-mode flag
// consulted by scan ingestion. Neither is durable.
package scancache

import (
	"context"
	"time"
)

// LatestScan is what a polling client receives.
type LatestScan struct {
	TagID     string    `json:"tagId"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is the single per-user slot. Each new scan overwrites it.
type Entry struct {
	TagID     string    `json:"tagId"`
	Timestamp time.Time `json:"timestamp"`
	Consumed  bool      `json:"consumed"`
}

// Cache is implemented by the in-process and redis backends.
type Cache interface {
	// SetLatestScan overwrites the user's slot with an unconsumed entry.
	SetLatestScan(ctx context.Context, userID uint, tagID string, at time.Time) error
	// ConsumeLatestScan returns the entry once and marks it consumed; it
	// returns nil when there is nothing new.
	ConsumeLatestScan(ctx context.Context, userID uint) (*LatestScan, error)
	// ClearLatestScan drops the slot entirely.
	ClearLatestScan(ctx context.Context, userID uint) error

	SetAssociationMode(ctx context.Context, userID uint, active bool) error
	InAssociationMode(ctx context.Context, userID uint) (bool, error)
}
