package pester

import (
	"context"
	"time"
)

// ThreadStore is the type of a persistent store associating pull requests
// with the chat threads that track them.
type ThreadStore interface {
	// Lookup returns the thread record for a pull request,
	// or ErrNotFound if none has been posted yet.
	Lookup(ctx context.Context, pr int) (*ThreadRecord, error)

	// Put records the thread for a pull request. It overwrites idempotently,
	// persists durably before returning, and verifies the written value by
	// reading it back (IntegrityError on mismatch). Empty or zero arguments
	// yield a ValidationError.
	Put(ctx context.Context, pr int, threadID, repo string) error

	// Remove deletes the record for a pull request. It is a no-op, not an
	// error, when the record is absent or when the stored repository differs
	// from repo. Deletion is verified by reading back.
	Remove(ctx context.Context, pr int, repo string) error

	// All returns every tracked pull request. Iteration order is unspecified.
	All(ctx context.Context) ([]TrackedPR, error)
}

// ThreadRecord is the persisted state for one pull request. It exists exactly
// when a root notification message has been posted and not yet purged.
type ThreadRecord struct {
	ThreadID  string
	Repo      string
	UpdatedAt time.Time
}

// TrackedPR is one entry of a ThreadStore listing.
type TrackedPR struct {
	PR       int
	Repo     string
	ThreadID string
}
