package pester

import "context"

// Reader fetches pull-request state from the review system.
type Reader interface {
	// ListOpen returns snapshots of the open pull requests in a repository.
	ListOpen(ctx context.Context, workspace, repo string) ([]Snapshot, error)

	// Status returns the current state of a single pull request. A pull
	// request the review system no longer knows about is reported as
	// StateClosed, not as an error.
	Status(ctx context.Context, workspace, repo string, pr int) (string, error)

	// ValidateAccess checks that the configured credentials can see the
	// workspace. It is called once per workspace at startup; failure is
	// fatal to startup.
	ValidateAccess(ctx context.Context, workspace string) error
}

// Target names a workspace and the repositories to poll within it.
type Target struct {
	Workspace    string   `yaml:"workspace"`
	Repositories []string `yaml:"repositories"`
}
