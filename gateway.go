package pester

import "context"

// ChatGateway posts notification messages to the destination chat.
// Implementations map their transport's rate-limit condition (HTTP 429) to
// ErrRateLimited; every other failure is permanent from the queue's point
// of view.
type ChatGateway interface {
	// PostRoot posts a new top-level message and returns its message ID.
	PostRoot(ctx context.Context, text string) (string, error)

	// CreateThread makes the given message the root of a reply thread and
	// returns the thread ID.
	CreateThread(ctx context.Context, messageID string) (string, error)

	// PostReply posts text as a reply in an existing thread.
	PostReply(ctx context.Context, threadID, text string) (string, error)
}
