// Package store provides session-scoped key-value persistence for
// controller state (chat transcript, last-results cache). The port is
// deliberately small so tests can substitute an in-memory fake, and all
// callers treat failures as a degraded cache rather than an error.
package store

import (
	"context"
	"time"
)

// Store is the session-scoped storage port. Keys are namespaced by session
// id; a missing key is (nil, false, nil), never an error.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
}

// SearchLogEntry records one executed search or chat exchange for the
// activity log.
type SearchLogEntry struct {
	SessionID string
	Channel   string // "search" or "chat"
	Query     string
	Borough   string
	YearMin   *int
	Total     int
	TookMS    int64
	At        time.Time
}

// ActivityLogger receives search activity. Implementations must tolerate
// being called from short-lived goroutines.
type ActivityLogger interface {
	LogSearch(ctx context.Context, entry SearchLogEntry) error
}

// NopActivityLogger discards activity entries.
type NopActivityLogger struct{}

func (NopActivityLogger) LogSearch(context.Context, SearchLogEntry) error { return nil }
