// Package bitbucket implements pester.Reader on the Bitbucket Cloud 2.0
// REST API.
package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"pester"
)

const DefaultBaseURL = "https://api.bitbucket.org"

// Client reads pull-request state from Bitbucket Cloud. Authentication is
// either a bearer token (Token) or basic auth with an app password.
type Client struct {
	BaseURL  string
	Username string
	Password string
	Token    string
	HTTP     *http.Client
}

var _ pester.Reader = &Client{}

// Payload shapes of the 2.0 API, reduced to the fields we consume.

type account struct {
	DisplayName string `json:"display_name"`
}

type participant struct {
	User     account `json:"user"`
	Role     string  `json:"role"`
	Approved bool    `json:"approved"`
	State    string  `json:"state"`
}

type endpoint struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type pullRequest struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	State        string        `json:"state"`
	Author       account       `json:"author"`
	Reviewers    []account     `json:"reviewers"`
	Participants []participant `json:"participants"`
	Source       endpoint      `json:"source"`
	Destination  endpoint      `json:"destination"`
	Links        struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

type pullRequestPage struct {
	Values []pullRequest `json:"values"`
	Next   string        `json:"next"`
}

func (c *Client) ListOpen(ctx context.Context, workspace, repo string) ([]pester.Snapshot, error) {
	url := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests?state=OPEN&pagelen=50", c.baseURL(), workspace, repo)

	var result []pester.Snapshot
	for url != "" {
		var page pullRequestPage
		status, err := c.get(ctx, url, &page)
		if err != nil {
			return nil, errors.Wrapf(err, "listing pull requests in %s/%s", workspace, repo)
		}
		if status != http.StatusOK {
			return nil, errors.Errorf("listing pull requests in %s/%s: status %d", workspace, repo, status)
		}
		for i := range page.Values {
			result = append(result, toSnapshot(&page.Values[i]))
		}
		url = page.Next
	}
	return result, nil
}

func (c *Client) Status(ctx context.Context, workspace, repo string, pr int) (string, error) {
	url := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests/%d", c.baseURL(), workspace, repo, pr)

	var payload pullRequest
	status, err := c.get(ctx, url, &payload)
	if err != nil {
		return "", errors.Wrapf(err, "getting pull request %d", pr)
	}
	switch status {
	case http.StatusOK:
		return payload.State, nil
	case http.StatusNotFound:
		// The review system no longer knows this pull request.
		return pester.StateClosed, nil
	}
	return "", errors.Errorf("getting pull request %d: status %d", pr, status)
}

func (c *Client) ValidateAccess(ctx context.Context, workspace string) error {
	url := fmt.Sprintf("%s/2.0/workspaces/%s", c.baseURL(), workspace)

	var payload struct {
		Slug string `json:"slug"`
	}
	status, err := c.get(ctx, url, &payload)
	if err != nil {
		return errors.Wrapf(err, "checking access to workspace %s", workspace)
	}
	if status != http.StatusOK {
		return errors.Errorf("checking access to workspace %s: status %d", workspace, status)
	}
	return nil
}

func toSnapshot(pr *pullRequest) pester.Snapshot {
	sn := pester.Snapshot{
		ID:           pr.ID,
		Title:        pr.Title,
		Description:  pr.Description,
		State:        pr.State,
		Author:       pr.Author.DisplayName,
		Repo:         pr.Destination.Repository.FullName,
		SourceBranch: pr.Source.Branch.Name,
		DestBranch:   pr.Destination.Branch.Name,
		Link:         pr.Links.HTML.Href,
	}
	for _, r := range pr.Reviewers {
		sn.Reviewers = append(sn.Reviewers, r.DisplayName)
	}
	for _, p := range pr.Participants {
		sn.Participants = append(sn.Participants, pester.Participant{
			Name:     p.User.DisplayName,
			Role:     p.Role,
			Approved: p.Approved,
			State:    p.State,
		})
	}
	return sn
}

// get performs an authenticated GET and decodes the response body into dst
// when the status is 200. It returns the HTTP status; non-2xx statuses are
// for the caller to interpret.
func (c *Client) get(ctx context.Context, url string, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "preparing request")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		err = json.NewDecoder(resp.Body).Decode(dst)
		if err != nil {
			return resp.StatusCode, errors.Wrap(err, "parsing response")
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}
