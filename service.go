package pester

import (
	"log/slog"
)

// Service ties together the review-system reader, the thread store, the
// renderer, and the delivery queue. All collaborators are injected; Service
// holds no ambient global state.
type Service struct {
	AdminKey string
	Logger   *slog.Logger
	Mentions Mentions
	Queue    *DeliveryQueue
	Reader   Reader
	Targets  []Target
	Threads  ThreadStore
}
