package pester

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func newTestService(reader Reader, threads ThreadStore, gw ChatGateway) *Service {
	logger := testLogger()
	return &Service{
		Logger:   logger,
		Mentions: Mentions{"Carol": "<@UCAROL>", "B": "<@UB>"},
		Queue:    NewDeliveryQueue(gw, threads, logger),
		Reader:   reader,
		Targets: []Target{{
			Workspace:    "myteam",
			Repositories: []string{"billing"},
		}},
		Threads: threads,
	}
}

func TestPollEnqueuesRootForNewPullRequest(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{
		open: map[string][]Snapshot{
			"myteam/billing": {{
				ID:        1,
				Title:     "Add rate limiting",
				Author:    "Carol",
				State:     StateOpen,
				Reviewers: []string{"A", "B"},
				Repo:      "myteam/billing",
				Participants: []Participant{
					{Name: "A", Approved: true, State: ParticipationApproved},
				},
			}},
		},
		statuses: map[int]string{1: StateOpen},
	}
	threads := newMemStore()
	gw := new(fakeGateway)
	s := newTestService(reader, threads, gw)

	s.PollAll(ctx)

	if got := s.Queue.Len(); got != 1 {
		t.Fatalf("queue has %d items, want 1", got)
	}
	s.Queue.Drain(ctx)

	if len(gw.texts) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(gw.texts))
	}
	for _, want := range []string{"✅ A", "⏳ B"} {
		if !strings.Contains(gw.texts[0], want) {
			t.Errorf("root message lacks %q:\n%s", want, gw.texts[0])
		}
	}
	rec, err := threads.Lookup(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Repo != "myteam/billing" {
		t.Errorf("recorded repo %s", rec.Repo)
	}
}

func TestPollEnqueuesAllApprovedReply(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{
		open: map[string][]Snapshot{
			"myteam/billing": {{
				ID:        2,
				Title:     "Fix flaky invoice test",
				Author:    "Carol",
				State:     StateOpen,
				Reviewers: []string{"A", "B"},
				Repo:      "myteam/billing",
				Participants: []Participant{
					{Name: "A", Approved: true, State: ParticipationApproved},
					{Name: "B", Approved: true, State: ParticipationApproved},
				},
			}},
		},
		statuses: map[int]string{2: StateOpen},
	}
	threads := newMemStore()
	if err := threads.Put(ctx, 2, "1700000000.000777", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	gw := new(fakeGateway)
	s := newTestService(reader, threads, gw)

	s.PollAll(ctx)
	s.Queue.Drain(ctx)

	wantCall := "reply 1700000000.000777"
	if len(gw.calls) != 1 || gw.calls[0] != wantCall {
		t.Fatalf("gateway calls %v, want [%s]", gw.calls, wantCall)
	}
	if !strings.Contains(gw.texts[0], "<@UCAROL>") {
		t.Errorf("reply does not mention the author:\n%s", gw.texts[0])
	}
}

func TestPollEnqueuesNothingWhenNoReviewers(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{
		open: map[string][]Snapshot{
			"myteam/billing": {{
				ID:     3,
				Title:  "WIP",
				Author: "Carol",
				State:  StateOpen,
				Repo:   "myteam/billing",
			}},
		},
		statuses: map[int]string{3: StateOpen},
	}
	threads := newMemStore()
	if err := threads.Put(ctx, 3, "ts3", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	s := newTestService(reader, threads, new(fakeGateway))

	s.PollAll(ctx)
	s.PollAll(ctx)

	if got := s.Queue.Len(); got != 0 {
		t.Errorf("queue has %d items, want 0", got)
	}
}

func TestSweepPurgesMergedPullRequest(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{
		statuses: map[int]string{7: StateMerged},
	}
	threads := newMemStore()
	if err := threads.Put(ctx, 7, "ts7", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	s := newTestService(reader, threads, new(fakeGateway))

	s.PollAll(ctx)

	if _, err := threads.Lookup(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("merged pull request still tracked: %v", err)
	}
	if got := s.Queue.Len(); got != 0 {
		t.Errorf("queue has %d items, want 0", got)
	}

	// A second cycle finds nothing to purge and nothing to post.
	s.PollAll(ctx)
	if got := s.Queue.Len(); got != 0 {
		t.Errorf("queue has %d items after second cycle, want 0", got)
	}
}

func TestSweepKeepsOpenPullRequest(t *testing.T) {
	ctx := context.Background()

	// Tracked and still open, but missing from the listing, as happens when
	// the listing call failed this cycle.
	reader := &fakeReader{
		listErr:  errors.New("503 from upstream"),
		statuses: map[int]string{8: StateOpen},
	}
	threads := newMemStore()
	if err := threads.Put(ctx, 8, "ts8", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	s := newTestService(reader, threads, new(fakeGateway))

	s.PollAll(ctx)

	if _, err := threads.Lookup(ctx, 8); err != nil {
		t.Errorf("open pull request was purged: %v", err)
	}
}

func TestSweepDeletedPullRequestTreatedAsClosed(t *testing.T) {
	ctx := context.Background()
	reader := new(fakeReader) // Status reports closed for everything
	threads := newMemStore()
	if err := threads.Put(ctx, 9, "ts9", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	s := newTestService(reader, threads, new(fakeGateway))

	s.PollAll(ctx)

	if _, err := threads.Lookup(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted pull request still tracked: %v", err)
	}
}

func TestSweepIgnoresOtherRepositories(t *testing.T) {
	ctx := context.Background()
	reader := new(fakeReader)
	threads := newMemStore()
	if err := threads.Put(ctx, 10, "ts10", "otherteam/ops"); err != nil {
		t.Fatal(err)
	}
	s := newTestService(reader, threads, new(fakeGateway))

	s.PollAll(ctx)

	if _, err := threads.Lookup(ctx, 10); err != nil {
		t.Errorf("record from another repository was purged: %v", err)
	}
}

func TestPollFailureEnqueuesErrorNotification(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{statusErr: errors.New("boom")}
	threads := newMemStore()
	if err := threads.Put(ctx, 11, "ts11", "myteam/billing"); err != nil {
		t.Fatal(err)
	}
	gw := new(fakeGateway)
	s := newTestService(reader, threads, gw)

	s.PollAll(ctx)
	s.Queue.Drain(ctx)

	if len(gw.texts) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(gw.texts))
	}
	if !strings.Contains(gw.texts[0], "⚠️ Failed to process myteam/billing") {
		t.Errorf("unexpected error notification:\n%s", gw.texts[0])
	}
}
