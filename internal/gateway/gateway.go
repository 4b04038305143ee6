// Package gateway is the single boundary to GitHub. It wraps the REST API
// (go-github) for org-level listings and the GraphQL API (Projects V2) for
// boards, and classifies every failure so callers can tell transient trouble
// from permanent trouble.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/machinebox/graphql"
	"golang.org/x/oauth2"

	"github.com/wylited/usthingy/internal/domain"
)

// Gateway is the remote data boundary consumed by the refresher, the edit
// session manager and the command handlers.
type Gateway interface {
	FetchRepositories(ctx context.Context) ([]domain.Repository, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchProjects(ctx context.Context) ([]domain.Project, error)
	CommitFieldMutation(ctx context.Context, projectID, itemID string, field domain.FieldDef, value domain.Value) error

	AssignIssue(ctx context.Context, repo string, number int, assignee string) (string, error)
	ListOpenIssues(ctx context.Context, repo string, limit int) ([]IssueSummary, error)
	Workload(ctx context.Context, login string) (Workload, error)
}

// IssueSummary is the slice of issue data the bot renders in listings.
type IssueSummary struct {
	Repo   string
	Number int
	Title  string
	URL    string
	Author string
}

// Workload groups a user's open work for the /user view command.
type Workload struct {
	Assigned []IssueSummary
	OpenPRs  []IssueSummary
	Reviews  []IssueSummary
}

// Client talks to GitHub with a single org-wide token.
type Client struct {
	rest *gogithub.Client
	gql  *graphql.Client
	org  string
}

var _ Gateway = (*Client)(nil)

// NewClient builds a gateway for the given organization. The token is used
// for both REST and GraphQL calls.
func NewClient(token, org string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	hc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		rest: gogithub.NewClient(hc),
		gql:  graphql.NewClient("https://api.github.com/graphql", graphql.WithHTTPClient(hc)),
		org:  org,
	}
}

// FetchRepositories lists the org's repositories, paginating to exhaustion.
func (c *Client) FetchRepositories(ctx context.Context) ([]domain.Repository, error) {
	const op = "fetch repositories"

	var repos []domain.Repository
	opts := &gogithub.RepositoryListByOrgOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := c.rest.Repositories.ListByOrg(ctx, c.org, opts)
		if err != nil {
			return nil, classifyREST(op, resp, err)
		}
		for _, r := range page {
			repos = append(repos, domain.Repository{
				ID:         r.GetID(),
				Name:       r.GetName(),
				FullName:   r.GetFullName(),
				OpenIssues: r.GetOpenIssuesCount(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}

// FetchUsers lists org members and outside collaborators, merged and
// de-duplicated by login. Members win on conflict.
func (c *Client) FetchUsers(ctx context.Context) ([]domain.User, error) {
	const op = "fetch users"

	byLogin := make(map[string]domain.User)

	memberOpts := &gogithub.ListMembersOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := c.rest.Organizations.ListMembers(ctx, c.org, memberOpts)
		if err != nil {
			return nil, classifyREST(op, resp, err)
		}
		for _, u := range page {
			byLogin[u.GetLogin()] = domain.User{
				ID:        u.GetID(),
				Login:     u.GetLogin(),
				AvatarURL: u.GetAvatarURL(),
				Kind:      domain.UserMember,
			}
		}
		if resp.NextPage == 0 {
			break
		}
		memberOpts.Page = resp.NextPage
	}

	collabOpts := &gogithub.ListOutsideCollaboratorsOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		page, resp, err := c.rest.Organizations.ListOutsideCollaborators(ctx, c.org, collabOpts)
		if err != nil {
			return nil, classifyREST(op, resp, err)
		}
		for _, u := range page {
			if _, ok := byLogin[u.GetLogin()]; ok {
				continue
			}
			byLogin[u.GetLogin()] = domain.User{
				ID:        u.GetID(),
				Login:     u.GetLogin(),
				AvatarURL: u.GetAvatarURL(),
				Kind:      domain.UserCollaborator,
			}
		}
		if resp.NextPage == 0 {
			break
		}
		collabOpts.Page = resp.NextPage
	}

	users := make([]domain.User, 0, len(byLogin))
	for _, u := range byLogin {
		users = append(users, u)
	}
	return users, nil
}

// AssignIssue adds an assignee to an issue and returns its HTML URL.
func (c *Client) AssignIssue(ctx context.Context, repo string, number int, assignee string) (string, error) {
	issue, resp, err := c.rest.Issues.AddAssignees(ctx, c.org, repo, number, []string{assignee})
	if err != nil {
		return "", classifyREST("assign issue", resp, err)
	}
	return issue.GetHTMLURL(), nil
}

// ListOpenIssues returns up to limit open issues in one repository.
func (c *Client) ListOpenIssues(ctx context.Context, repo string, limit int) ([]IssueSummary, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: limit},
	}
	page, resp, err := c.rest.Issues.ListByRepo(ctx, c.org, repo, opts)
	if err != nil {
		return nil, classifyREST("list issues", resp, err)
	}
	out := make([]IssueSummary, 0, len(page))
	for _, i := range page {
		out = append(out, IssueSummary{
			Repo:   repo,
			Number: i.GetNumber(),
			Title:  i.GetTitle(),
			URL:    i.GetHTMLURL(),
			Author: i.GetUser().GetLogin(),
		})
	}
	return out, nil
}

// Workload collects a user's assigned issues, open PRs and review requests
// across the org via the search API.
func (c *Client) Workload(ctx context.Context, login string) (Workload, error) {
	var w Workload

	search := func(query string) ([]IssueSummary, error) {
		opts := &gogithub.SearchOptions{ListOptions: gogithub.ListOptions{PerPage: 5}}
		res, resp, err := c.rest.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, classifyREST("search issues", resp, err)
		}
		out := make([]IssueSummary, 0, len(res.Issues))
		for _, i := range res.Issues {
			out = append(out, IssueSummary{
				Repo:   repoFromURL(i.GetRepositoryURL()),
				Number: i.GetNumber(),
				Title:  i.GetTitle(),
				URL:    i.GetHTMLURL(),
				Author: i.GetUser().GetLogin(),
			})
		}
		return out, nil
	}

	var err error
	if w.Assigned, err = search(fmt.Sprintf("org:%s assignee:%s is:issue is:open", c.org, login)); err != nil {
		return w, err
	}
	if w.OpenPRs, err = search(fmt.Sprintf("org:%s author:%s is:pr is:open", c.org, login)); err != nil {
		return w, err
	}
	if w.Reviews, err = search(fmt.Sprintf("org:%s review-requested:%s is:pr is:open", c.org, login)); err != nil {
		return w, err
	}
	return w, nil
}

func repoFromURL(u string) string {
	if idx := strings.LastIndex(u, "/"); idx >= 0 {
		return u[idx+1:]
	}
	return u
}

// classifyREST maps go-github failures onto the gateway error taxonomy.
func classifyREST(op string, resp *gogithub.Response, err error) *RemoteError {
	var rate *gogithub.RateLimitError
	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &rate) || errors.As(err, &abuse) {
		return remoteErr(FailureRateLimited, op, err)
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return remoteErr(FailureAuth, op, err)
		case http.StatusUnprocessableEntity:
			return remoteErr(FailureMalformed, op, err)
		}
	}
	return remoteErr(FailureNetwork, op, err)
}

// classifyGraphQL maps machinebox/graphql failures onto the taxonomy. The
// library flattens server-side errors into "graphql: <message>" strings, so
// classification here is by message shape.
func classifyGraphQL(op string, err error) *RemoteError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"):
		return remoteErr(FailureRateLimited, op, err)
	case strings.Contains(msg, "bad credentials"), strings.Contains(msg, "401"):
		return remoteErr(FailureAuth, op, err)
	case strings.Contains(msg, "graphql:"), strings.Contains(msg, "decoding response"):
		return remoteErr(FailureMalformed, op, err)
	default:
		return remoteErr(FailureNetwork, op, err)
	}
}
