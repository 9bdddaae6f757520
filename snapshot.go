package pester

// Pull-request states as reported by the review system.
const (
	StateOpen       = "OPEN"
	StateMerged     = "MERGED"
	StateDeclined   = "DECLINED"
	StateSuperseded = "SUPERSEDED"

	// StateClosed is synthetic: it stands in for pull requests the review
	// system no longer knows about at all.
	StateClosed = "CLOSED"
)

// Participation states attached to a reviewer's participation record.
const (
	ParticipationApproved         = "approved"
	ParticipationChangesRequested = "changes_requested"
)

// Snapshot is a point-in-time read of a single pull request. It is fetched
// fresh each poll cycle and never mutated.
type Snapshot struct {
	ID           int
	Title        string
	Description  string
	State        string
	Author       string
	Reviewers    []string // requested reviewers, in review-system order, no duplicates
	Participants []Participant
	Repo         string // full name, e.g. "myteam/billing"
	SourceBranch string
	DestBranch   string
	Link         string
}

// Participant is one user's participation record on a pull request.
type Participant struct {
	Name     string
	Role     string
	Approved bool
	State    string // "", ParticipationApproved, or ParticipationChangesRequested
}

// Participant returns the participation record for the named reviewer,
// or nil if there is none. Absence means the reviewer is pending.
func (sn *Snapshot) Participant(name string) *Participant {
	for i := range sn.Participants {
		if sn.Participants[i].Name == name {
			return &sn.Participants[i]
		}
	}
	return nil
}

// PendingReviewers returns the reviewers still expected to act, preserving
// the snapshot's reviewer order. A reviewer is pending when it has no
// participation record, or an unapproved record that is not an explicit
// request for changes.
func (sn *Snapshot) PendingReviewers() []string {
	var result []string
	for _, name := range sn.Reviewers {
		p := sn.Participant(name)
		if p == nil || (!p.Approved && p.State != ParticipationChangesRequested) {
			result = append(result, name)
		}
	}
	return result
}

// AllApproved reports whether every reviewer has an approving participation
// record. It is false for a pull request with no reviewers.
func (sn *Snapshot) AllApproved() bool {
	if len(sn.Reviewers) == 0 {
		return false
	}
	for _, name := range sn.Reviewers {
		p := sn.Participant(name)
		if p == nil || !p.Approved {
			return false
		}
	}
	return true
}
