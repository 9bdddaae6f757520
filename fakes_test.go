package pester

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway records calls and delivers canned failures, one per delivery
// attempt, then succeeds.
type fakeGateway struct {
	mu       sync.Mutex
	failures []error
	calls    []string
	texts    []string
	nextTS   int
}

func (g *fakeGateway) nextErr() error {
	if len(g.failures) == 0 {
		return nil
	}
	err := g.failures[0]
	g.failures = g.failures[1:]
	return err
}

func (g *fakeGateway) PostRoot(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "root")
	if err := g.nextErr(); err != nil {
		return "", err
	}
	g.nextTS++
	g.texts = append(g.texts, text)
	return fmt.Sprintf("1700000000.%06d", g.nextTS), nil
}

func (g *fakeGateway) CreateThread(ctx context.Context, messageID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "thread "+messageID)
	return messageID, nil
}

func (g *fakeGateway) PostReply(ctx context.Context, threadID, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "reply "+threadID)
	if err := g.nextErr(); err != nil {
		return "", err
	}
	g.nextTS++
	g.texts = append(g.texts, text)
	return fmt.Sprintf("1700000000.%06d", g.nextTS), nil
}

// memStore is an in-memory ThreadStore for tests.
type memStore struct {
	mu      sync.Mutex
	records map[int]ThreadRecord
	putErr  error
}

var _ ThreadStore = &memStore{}

func newMemStore() *memStore {
	return &memStore{records: make(map[int]ThreadRecord)}
}

func (m *memStore) Lookup(ctx context.Context, pr int) (*ThreadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pr]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *memStore) Put(ctx context.Context, pr int, threadID, repo string) error {
	if m.putErr != nil {
		return m.putErr
	}
	if pr <= 0 || threadID == "" || repo == "" {
		return ValidationError("bad arguments")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[pr] = ThreadRecord{ThreadID: threadID, Repo: repo}
	return nil
}

func (m *memStore) Remove(ctx context.Context, pr int, repo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pr]
	if !ok || rec.Repo != repo {
		return nil
	}
	delete(m.records, pr)
	return nil
}

func (m *memStore) All(ctx context.Context) ([]TrackedPR, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []TrackedPR
	for pr, rec := range m.records {
		result = append(result, TrackedPR{PR: pr, Repo: rec.Repo, ThreadID: rec.ThreadID})
	}
	return result, nil
}

// fakeReader serves canned snapshots and statuses.
type fakeReader struct {
	open      map[string][]Snapshot // "workspace/repo" -> open pull requests
	statuses  map[int]string        // absent means closed
	listErr   error
	statusErr error
}

var _ Reader = &fakeReader{}

func (r *fakeReader) ListOpen(ctx context.Context, workspace, repo string) ([]Snapshot, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.open[workspace+"/"+repo], nil
}

func (r *fakeReader) Status(ctx context.Context, workspace, repo string, pr int) (string, error) {
	if r.statusErr != nil {
		return "", r.statusErr
	}
	if state, ok := r.statuses[pr]; ok {
		return state, nil
	}
	return StateClosed, nil
}

func (r *fakeReader) ValidateAccess(ctx context.Context, workspace string) error {
	return nil
}
