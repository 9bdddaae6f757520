// Package ghreader implements pester.Reader on the GitHub API, for teams
// whose pull requests live on GitHub or a GitHub Enterprise server. The
// workspace maps to the repository owner.
package ghreader

import (
	"context"
	"net/http"
	"sort"

	"github.com/google/go-github/v45/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"pester"
)

type Reader struct {
	client *github.Client
}

var _ pester.Reader = &Reader{}

func New(ctx context.Context, apiURL, uploadURL, token string) (*Reader, error) {
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client, err := github.NewEnterpriseClient(apiURL, uploadURL, hc)
	if err != nil {
		return nil, errors.Wrap(err, "creating GitHub client")
	}
	return &Reader{client: client}, nil
}

func (r *Reader) ListOpen(ctx context.Context, workspace, repo string) ([]pester.Snapshot, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 50},
	}

	var result []pester.Snapshot
	for {
		prs, resp, err := r.client.PullRequests.List(ctx, workspace, repo, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "listing pull requests in %s/%s", workspace, repo)
		}
		for _, pr := range prs {
			sn, err := r.toSnapshot(ctx, workspace, repo, pr)
			if err != nil {
				return nil, err
			}
			result = append(result, sn)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

func (r *Reader) Status(ctx context.Context, workspace, repo string, pr int) (string, error) {
	got, resp, err := r.client.PullRequests.Get(ctx, workspace, repo, pr)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return pester.StateClosed, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "getting pull request %d", pr)
	}
	switch {
	case got.GetMerged():
		return pester.StateMerged, nil
	case got.GetState() == "closed":
		return pester.StateDeclined, nil
	}
	return pester.StateOpen, nil
}

func (r *Reader) ValidateAccess(ctx context.Context, workspace string) error {
	_, _, err := r.client.Users.Get(ctx, workspace)
	return errors.Wrapf(err, "checking access to %s", workspace)
}

// toSnapshot joins a pull request with its reviews. GitHub removes a user
// from the requested-reviewers list once they have reviewed, so the snapshot
// reviewer set is the union of the requested and the already-reviewed users.
func (r *Reader) toSnapshot(ctx context.Context, workspace, repo string, pr *github.PullRequest) (pester.Snapshot, error) {
	sn := pester.Snapshot{
		ID:           pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		State:        pester.StateOpen,
		Author:       pr.GetUser().GetLogin(),
		Repo:         pr.GetBase().GetRepo().GetFullName(),
		SourceBranch: pr.GetHead().GetRef(),
		DestBranch:   pr.GetBase().GetRef(),
		Link:         pr.GetHTMLURL(),
	}
	for _, u := range pr.RequestedReviewers {
		sn.Reviewers = append(sn.Reviewers, u.GetLogin())
	}

	reviews, _, err := r.client.PullRequests.ListReviews(ctx, workspace, repo, pr.GetNumber(), nil)
	if err != nil {
		return sn, errors.Wrapf(err, "listing reviews of pull request %d", pr.GetNumber())
	}

	// Keep each reviewer's latest meaningful review; reviews arrive oldest
	// first.
	latest := make(map[string]string)
	for _, rev := range reviews {
		login := rev.GetUser().GetLogin()
		if login == "" || login == sn.Author {
			continue
		}
		switch rev.GetState() {
		case "APPROVED", "CHANGES_REQUESTED", "DISMISSED":
			latest[login] = rev.GetState()
		}
	}

	logins := make([]string, 0, len(latest))
	for login := range latest {
		logins = append(logins, login)
	}
	sort.Strings(logins)

	for _, login := range logins {
		if !contains(sn.Reviewers, login) {
			sn.Reviewers = append(sn.Reviewers, login)
		}
		p := pester.Participant{Name: login, Role: "REVIEWER"}
		switch latest[login] {
		case "APPROVED":
			p.Approved = true
			p.State = pester.ParticipationApproved
		case "CHANGES_REQUESTED":
			p.State = pester.ParticipationChangesRequested
		}
		sn.Participants = append(sn.Participants, p)
	}
	return sn, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
