package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of these ports.

// UpdateWriter consumes pipeline updates and persists the latest per-symbol
// view somewhere external consumers can read it.
type UpdateWriter interface {
	// Run reads updates from updateCh and writes them.
	// Blocks until ctx is cancelled or updateCh is closed.
	Run(ctx context.Context, updateCh <-chan Update)

	// Close releases underlying resources.
	Close() error
}

// AlertHistory serves bounded recent alert history. Writes happen on
// the UpdateWriter path; this is the read side the API consumes.
type AlertHistory interface {
	// Recent returns up to limit alerts, newest first.
	Recent(ctx context.Context, limit int) ([]Alert, error)
}

// CheckpointStore reads and writes engine state checkpoints as raw JSON.
// Using []byte avoids a model→engine import cycle.
type CheckpointStore interface {
	// SaveCheckpointJSON persists a JSON-encoded engine checkpoint.
	SaveCheckpointJSON(data []byte) error

	// ReadLatestCheckpointJSON loads the most recent checkpoint as raw JSON.
	// Returns nil, nil if no checkpoint exists.
	ReadLatestCheckpointJSON() ([]byte, error)
}
