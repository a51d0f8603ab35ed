package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// apiVersion is sent with every request.
const apiVersion = "2022-11-28"

// Validators are the conditional request validators of a cached response.
type Validators struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validator is set.
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// RunsPage is the result of a conditional runs listing.
type RunsPage struct {
	Runs        []APIRun
	Validators  Validators
	NotModified bool
}

// RunResult is the result of a conditional single-run fetch.
type RunResult struct {
	Run         *APIRun
	ETag        string
	NotModified bool
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Token     string
	APIURL    string
	Transport http.RoundTripper
}

// Client talks to the GitHub REST API on behalf of one user token.
type Client struct {
	rest    *api.RESTClient
	http    *http.Client
	baseURL string
}

// NewClient creates a client bound to a single access token.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("github: token is required")
	}
	base := strings.TrimRight(opts.APIURL, "/")
	if base == "" {
		base = DefaultAPIURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("github: invalid api url %q: %w", base, err)
	}

	clientOpts := api.ClientOptions{
		Host:      u.Hostname(),
		AuthToken: opts.Token,
		Transport: opts.Transport,
		Headers: map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": apiVersion,
		},
	}
	rest, err := api.NewRESTClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("github: failed to create REST client: %w", err)
	}
	httpClient, err := api.NewHTTPClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("github: failed to create HTTP client: %w", err)
	}

	return &Client{rest: rest, http: httpClient, baseURL: base}, nil
}

func (c *Client) url(path string, query url.Values) string {
	s := c.baseURL + path
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

// StatusCode extracts the upstream HTTP status from an error, or 0.
func StatusCode(err error) int {
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// AuthenticatedUser returns the user owning the token.
func (c *Client) AuthenticatedUser(ctx context.Context) (*APIUser, error) {
	var user APIUser
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url("/user", nil), nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// ListUserRepos lists the repositories of the authenticated user, most recently
// updated first. When ownerOnly is set, organization repositories are excluded.
func (c *Client) ListUserRepos(ctx context.Context, ownerOnly bool) ([]APIRepo, error) {
	q := url.Values{"per_page": {"100"}, "sort": {"updated"}}
	if ownerOnly {
		q.Set("affiliation", "owner")
	}
	var repos []APIRepo
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url("/user/repos", q), nil, &repos); err != nil {
		return nil, fmt.Errorf("failed to list user repos: %w", err)
	}
	return repos, nil
}

// ListOrgRepos lists the repositories of an organization.
func (c *Client) ListOrgRepos(ctx context.Context, org string) ([]APIRepo, error) {
	q := url.Values{"per_page": {"100"}, "sort": {"updated"}}
	var repos []APIRepo
	path := "/orgs/" + url.PathEscape(org) + "/repos"
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url(path, q), nil, &repos); err != nil {
		return nil, fmt.Errorf("failed to list org repos: %w", err)
	}
	return repos, nil
}

// ListRunsCreated lists runs of a repository created within [from, to] (YYYY-MM-DD).
func (c *Client) ListRunsCreated(ctx context.Context, owner, repo, from, to string) ([]APIRun, error) {
	q := url.Values{"created": {from + ".." + to}, "per_page": {"100"}}
	var resp RunsResponse
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url(repoPath(owner, repo)+"/actions/runs", q), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s/%s: %w", owner, repo, err)
	}
	return resp.WorkflowRuns, nil
}

// ListRuns lists the latest runs of a repository.
func (c *Client) ListRuns(ctx context.Context, owner, repo string, perPage int) ([]APIRun, error) {
	q := url.Values{"per_page": {strconv.Itoa(perPage)}}
	var resp RunsResponse
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url(repoPath(owner, repo)+"/actions/runs", q), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s/%s: %w", owner, repo, err)
	}
	return resp.WorkflowRuns, nil
}

// conditionalGet issues a GET carrying the given validators. A 304 answer is
// returned with a nil error; other non-2xx answers become *api.HTTPError.
func (c *Client) conditionalGet(ctx context.Context, target string, v Validators) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, api.HandleHTTPError(resp)
	}
	return resp, nil
}

// SyncRuns fetches the most recently updated runs of a repository conditionally.
func (c *Client) SyncRuns(ctx context.Context, owner, repo string, v Validators) (*RunsPage, error) {
	q := url.Values{"per_page": {"100"}, "sort": {"updated"}, "direction": {"desc"}}
	resp, err := c.conditionalGet(ctx, c.url(repoPath(owner, repo)+"/actions/runs", q), v)
	if err != nil {
		return nil, fmt.Errorf("failed to sync runs for %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	page := &RunsPage{
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}
	if resp.StatusCode == http.StatusNotModified {
		page.NotModified = true
		return page, nil
	}

	var body RunsResponse
	if err := decodeJSON(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode runs for %s/%s: %w", owner, repo, err)
	}
	page.Runs = body.WorkflowRuns
	return page, nil
}

// GetRun fetches a single run, conditionally on etag when set.
func (c *Client) GetRun(ctx context.Context, owner, repo string, runID int64, etag string) (*RunResult, error) {
	target := c.url(repoPath(owner, repo)+"/actions/runs/"+strconv.FormatInt(runID, 10), nil)
	resp, err := c.conditionalGet(ctx, target, Validators{ETag: etag})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %d: %w", runID, err)
	}
	defer resp.Body.Close()

	result := &RunResult{ETag: resp.Header.Get("ETag")}
	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}

	var run APIRun
	if err := decodeJSON(resp.Body, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %d: %w", runID, err)
	}
	result.Run = &run
	return result, nil
}

// ListJobs lists the jobs of a run. A positive attempt selects that attempt.
func (c *Client) ListJobs(ctx context.Context, owner, repo string, runID int64, attempt int) ([]APIJob, error) {
	path := repoPath(owner, repo) + "/actions/runs/" + strconv.FormatInt(runID, 10)
	if attempt > 0 {
		path += "/attempts/" + strconv.Itoa(attempt)
	}
	path += "/jobs"

	var resp JobsResponse
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url(path, url.Values{"per_page": {"100"}}), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list jobs for run %d: %w", runID, err)
	}
	return resp.Jobs, nil
}

// GetCommit fetches a commit by sha.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*APICommit, error) {
	var commit APICommit
	path := repoPath(owner, repo) + "/commits/" + url.PathEscape(sha)
	if err := c.rest.DoWithContext(ctx, http.MethodGet, c.url(path, nil), nil, &commit); err != nil {
		return nil, fmt.Errorf("failed to fetch commit %s: %w", sha, err)
	}
	return &commit, nil
}

// JobLogs downloads the plain-text log of a job.
func (c *Client) JobLogs(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	path := repoPath(owner, repo) + "/actions/jobs/" + strconv.FormatInt(jobID, 10) + "/logs"
	resp, err := c.rest.RequestWithContext(ctx, http.MethodGet, c.url(path, nil), nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for job %d: %w", jobID, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for job %d: %w", jobID, err)
	}
	return string(b), nil
}

func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.rest.RequestWithContext(ctx, http.MethodPost, c.url(path, nil), nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// RerunRun re-runs every job of a run.
func (c *Client) RerunRun(ctx context.Context, owner, repo string, runID int64) error {
	path := repoPath(owner, repo) + "/actions/runs/" + strconv.FormatInt(runID, 10) + "/rerun"
	if err := c.post(ctx, path); err != nil {
		return fmt.Errorf("failed to rerun run %d: %w", runID, err)
	}
	return nil
}

// RerunFailedJobs re-runs only the failed jobs of a run.
func (c *Client) RerunFailedJobs(ctx context.Context, owner, repo string, runID int64) error {
	path := repoPath(owner, repo) + "/actions/runs/" + strconv.FormatInt(runID, 10) + "/rerun-failed-jobs"
	if err := c.post(ctx, path); err != nil {
		return fmt.Errorf("failed to rerun failed jobs of run %d: %w", runID, err)
	}
	return nil
}

// RerunJob re-runs a single job.
func (c *Client) RerunJob(ctx context.Context, owner, repo string, jobID int64) error {
	path := repoPath(owner, repo) + "/actions/jobs/" + strconv.FormatInt(jobID, 10) + "/rerun"
	if err := c.post(ctx, path); err != nil {
		return fmt.Errorf("failed to rerun job %d: %w", jobID, err)
	}
	return nil
}
