package pester

import (
	"context"
	"fmt"

	"github.com/bobg/go-generics/set"
	"github.com/pkg/errors"
)

// PollAll runs one reconciliation cycle over every configured target.
// A failure in one repository is logged and reported as an error message in
// the chat; it never aborts the remaining repositories or the next cycle.
func (s *Service) PollAll(ctx context.Context) {
	for _, target := range s.Targets {
		for _, repo := range target.Repositories {
			if err := s.pollRepo(ctx, target.Workspace, repo); err != nil {
				s.Logger.Error("poll pass failed", "workspace", target.Workspace, "repo", repo, "err", err)
				s.Queue.Enqueue(&QueuedMessage{
					Text: fmt.Sprintf("⚠️ Failed to process %s/%s: %s", target.Workspace, repo, err),
				})
			}
		}
	}
}

// pollRepo reconciles one repository: it classifies each open pull request
// against the thread store, enqueues the resulting notifications, and purges
// records of pull requests that have left the Open state.
func (s *Service) pollRepo(ctx context.Context, workspace, repo string) error {
	fullName := workspace + "/" + repo

	snapshots, err := s.Reader.ListOpen(ctx, workspace, repo)
	if err != nil {
		// A failed listing contributes zero notifications but does not stop
		// the closure sweep below: the sweep verifies every candidate with
		// an individual status call before removing anything.
		s.Logger.Error("listing open pull requests failed", "repo", fullName, "err", err)
		snapshots = nil
	}

	observed := set.New[int]()
	for i := range snapshots {
		sn := &snapshots[i]
		observed.Add(sn.ID)

		rec, err := s.Threads.Lookup(ctx, sn.ID)
		hasThread := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrapf(err, "looking up thread for PR %d", sn.ID)
		}

		switch Classify(sn, hasThread) {
		case NewPullRequest:
			s.Queue.Enqueue(&QueuedMessage{
				Text: RenderRoot(sn),
				PR:   sn.ID,
				Repo: sn.Repo,
			})

		case AllApproved:
			s.Queue.Enqueue(&QueuedMessage{
				Text:     RenderAllApproved(sn, s.Mentions),
				ThreadID: rec.ThreadID,
			})

		case ReminderUpdate:
			s.Queue.Enqueue(&QueuedMessage{
				Text:     RenderReminder(sn, s.Mentions),
				ThreadID: rec.ThreadID,
			})
		}
	}

	return s.sweepClosed(ctx, workspace, repo, fullName, observed)
}

// sweepClosed compares the tracked pull requests of a repository against the
// set observed open this cycle and purges thread records of the ones that
// have been merged, declined, superseded, or deleted.
func (s *Service) sweepClosed(ctx context.Context, workspace, repo, fullName string, observed set.Of[int]) error {
	tracked, err := s.Threads.All(ctx)
	if err != nil {
		return errors.Wrap(err, "listing tracked pull requests")
	}

	for _, t := range tracked {
		if t.Repo != fullName || observed.Has(t.PR) {
			continue
		}

		state, err := s.Reader.Status(ctx, workspace, repo, t.PR)
		if err != nil {
			return errors.Wrapf(err, "getting status of PR %d", t.PR)
		}
		if state == StateOpen {
			continue
		}

		s.Logger.Info("pull request left the open state, purging thread record", "pr", t.PR, "repo", fullName, "state", state)
		err = s.Threads.Remove(ctx, t.PR, t.Repo)
		if err != nil {
			return errors.Wrapf(err, "removing thread record for PR %d", t.PR)
		}
	}
	return nil
}
