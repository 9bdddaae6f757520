package pester

import (
	"fmt"
	"strings"
)

// Outcome classifies what, if anything, should be posted for a snapshot.
type Outcome int

const (
	// NoChange means nothing should be posted.
	NoChange Outcome = iota

	// NewPullRequest means a root message should be posted,
	// establishing the pull request's thread.
	NewPullRequest

	// AllApproved means a reply should congratulate the author:
	// every reviewer has approved.
	AllApproved

	// ReminderUpdate means a reply should nudge the reviewers
	// that have not acted yet.
	ReminderUpdate
)

// Reviewer status glyphs used in rendered messages.
const (
	glyphApproved         = "✅"
	glyphChangesRequested = "❌"
	glyphPending          = "⏳"
)

// Classify decides the outcome for a snapshot. hasThread reports whether a
// thread record already exists for the pull request. AllApproved wins over
// ReminderUpdate: it requires an empty pending set, so the two can never
// both hold.
func Classify(sn *Snapshot, hasThread bool) Outcome {
	if !hasThread {
		return NewPullRequest
	}
	if sn.State == StateOpen && sn.AllApproved() {
		return AllApproved
	}
	if len(sn.PendingReviewers()) > 0 {
		return ReminderUpdate
	}
	return NoChange
}

// Mentions maps review-system display names to chat mention strings.
type Mentions map[string]string

// Resolve returns the mention for a display name, falling back to the name
// itself when unmapped.
func (m Mentions) Resolve(name string) string {
	if mention, ok := m[name]; ok {
		return mention
	}
	return name
}

// RenderRoot renders the root message for a newly observed pull request.
func RenderRoot(sn *Snapshot) string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "*%s* by %s\n", sn.Title, sn.Author)
	fmt.Fprintf(b, "Status: %s\n", humanState(sn.State))
	fmt.Fprintf(b, "Repository: %s (`%s` → `%s`)\n", sn.Repo, sn.SourceBranch, sn.DestBranch)
	b.WriteString("Reviewers:\n")
	for _, name := range sn.Reviewers {
		fmt.Fprintf(b, "%s %s\n", reviewerGlyph(sn, name), name)
	}
	if sn.Description != "" {
		b.WriteString("\n" + MarkdownToMrkdwn(sn.Description) + "\n")
	}
	b.WriteString("\n" + sn.Link)
	return b.String()
}

// RenderAllApproved renders the reply posted when every reviewer has approved.
func RenderAllApproved(sn *Snapshot, mentions Mentions) string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "%s all reviewers have approved! 🎉\n", mentions.Resolve(sn.Author))
	for _, name := range sn.Reviewers {
		fmt.Fprintf(b, "%s %s\n", glyphApproved, name)
	}
	b.WriteString("Ready to merge.")
	return b.String()
}

// RenderReminder renders the reply nudging the reviewers that are still pending.
func RenderReminder(sn *Snapshot, mentions Mentions) string {
	b := new(strings.Builder)
	b.WriteString("Still waiting for review from:\n")
	for _, name := range sn.PendingReviewers() {
		fmt.Fprintf(b, "%s %s\n", glyphPending, mentions.Resolve(name))
	}
	return strings.TrimRight(b.String(), "\n")
}

func reviewerGlyph(sn *Snapshot, name string) string {
	p := sn.Participant(name)
	switch {
	case p == nil:
		return glyphPending
	case p.Approved:
		return glyphApproved
	case p.State == ParticipationChangesRequested:
		return glyphChangesRequested
	default:
		return glyphPending
	}
}

func humanState(state string) string {
	switch state {
	case StateOpen:
		return "Open"
	case StateMerged:
		return "Merged"
	case StateDeclined:
		return "Declined"
	case StateSuperseded:
		return "Superseded"
	case StateClosed:
		return "Closed"
	}
	return state
}
