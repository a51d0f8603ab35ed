// Package client talks to the dashboard API on behalf of the terminal
// dashboard and the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ghapi "github.com/cli/go-gh/v2/pkg/api"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/github"
)

// ErrEmptyPayload is returned when the server answered a status or details
// request with an empty body twice in a row.
var ErrEmptyPayload = errors.New("dashboard api: empty workflow payload")

// APIError is a non-2xx answer from the dashboard API. MaxDays and UserTier
// are set on quota rejections.
type APIError struct {
	StatusCode int
	Message    string
	MaxDays    int
	UserTier   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("dashboard api: HTTP %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.MaxDays > 0 {
		tier := e.UserTier
		if tier == "" {
			tier = "unknown"
		}
		msg += fmt.Sprintf(" (max %d days, %s tier)", e.MaxDays, tier)
	}
	return msg
}

// SyncResult is the outcome of a conditional repository sync.
type SyncResult struct {
	Runs        []github.WorkflowRun
	Validators  github.Validators
	NotModified bool
}

// StatusResult is the outcome of a conditional run status fetch.
type StatusResult struct {
	Run         *github.WorkflowRun
	ETag        string
	NotModified bool
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Client is a dashboard API client bound to one token.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client. The token is sent as a bearer credential to the
// configured host only.
func New(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("client: token is required")
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", opts.BaseURL)
	}

	httpClient, err := ghapi.NewHTTPClient(ghapi.ClientOptions{
		Host:         u.Hostname(),
		AuthToken:    opts.Token,
		Transport:    opts.Transport,
		Timeout:      opts.Timeout,
		LogIgnoreEnv: true,
		Headers: map[string]string{
			"Authorization": "Bearer " + opts.Token,
			"Accept":        "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("client: failed to create HTTP client: %w", err)
	}
	return &Client{http: httpClient, baseURL: base}, nil
}

func repoPath(owner, repo string) string {
	return "/api/workflows/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func runPath(owner, repo string, runID int64) string {
	return repoPath(owner, repo) + "/" + strconv.FormatInt(runID, 10)
}

func jobPath(owner, repo string, jobID int64) string {
	return repoPath(owner, repo) + "/jobs/" + strconv.FormatInt(jobID, 10)
}

// do sends a request and returns the response for 2xx and 304 answers.
// Other statuses are turned into *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, header http.Header) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, readAPIError(resp)
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body api.ErrorResponse
	if json.Unmarshal(b, &body) == nil {
		apiErr.Message = body.Error
		apiErr.MaxDays = body.MaxDays
		apiErr.UserTier = string(body.UserTier)
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp.Body, v)
}

func decode(r io.Reader, v any) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

// Me returns the signed-in user and their billing config.
func (c *Client) Me(ctx context.Context) (*api.UserInfo, error) {
	var info api.UserInfo
	if err := c.getJSON(ctx, "/api/auth/me", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &info, nil
}

// FetchBatch fetches runs created between dateFrom and dateTo.
func (c *Client) FetchBatch(ctx context.Context, batchID, dateFrom, dateTo string) (*api.BatchResponse, error) {
	q := url.Values{"dateFrom": {dateFrom}, "dateTo": {dateTo}, "batchId": {batchID}}
	var resp api.BatchResponse
	if err := c.getJSON(ctx, "/api/workflows/batch", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch batch %s: %w", batchID, err)
	}
	return &resp, nil
}

// ListRuns lists the latest runs of one repository.
func (c *Client) ListRuns(ctx context.Context, owner, repo string, perPage int) ([]github.WorkflowRun, error) {
	var q url.Values
	if perPage > 0 {
		q = url.Values{"per_page": {strconv.Itoa(perPage)}}
	}
	var runs []github.WorkflowRun
	if err := c.getJSON(ctx, repoPath(owner, repo), q, &runs); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s/%s: %w", owner, repo, err)
	}
	return runs, nil
}

// SyncRepo fetches a repository's recently updated runs conditionally.
func (c *Client) SyncRepo(ctx context.Context, owner, repo string, v github.Validators) (*SyncResult, error) {
	h := http.Header{}
	if v.ETag != "" {
		h.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		h.Set("If-Modified-Since", v.LastModified)
	}

	resp, err := c.do(ctx, http.MethodGet, repoPath(owner, repo)+"/sync", nil, nil, h)
	if err != nil {
		return nil, fmt.Errorf("failed to sync %s/%s: %w", owner, repo, err)
	}
	defer resp.Body.Close()

	result := &SyncResult{Validators: github.Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}}
	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}
	if err := decode(resp.Body, &result.Runs); err != nil {
		return nil, fmt.Errorf("failed to decode sync for %s/%s: %w", owner, repo, err)
	}
	return result, nil
}

func (c *Client) runStatus(ctx context.Context, owner, repo string, runID int64, etag string, noCache bool) (*StatusResult, error) {
	h := http.Header{}
	if etag != "" {
		h.Set("If-None-Match", etag)
	}
	var q url.Values
	if noCache {
		q = url.Values{"noCache": {"true"}}
	}

	resp, err := c.do(ctx, http.MethodGet, runPath(owner, repo, runID)+"/status", q, nil, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &StatusResult{ETag: resp.Header.Get("ETag")}
	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}
	var run github.WorkflowRun
	if err := decode(resp.Body, &run); err != nil {
		return nil, err
	}
	if run.ID != 0 {
		result.Run = &run
	}
	return result, nil
}

// RunStatus fetches the current state of a run, conditionally on etag. An
// empty answer is retried once without the validator and with caching
// disabled; a second empty answer yields ErrEmptyPayload.
func (c *Client) RunStatus(ctx context.Context, owner, repo string, runID int64, etag string) (*StatusResult, error) {
	result, err := c.runStatus(ctx, owner, repo, runID, etag, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status of run %d: %w", runID, err)
	}
	if result.NotModified || result.Run != nil {
		return result, nil
	}

	result, err = c.runStatus(ctx, owner, repo, runID, "", true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status of run %d: %w", runID, err)
	}
	if result.NotModified || result.Run == nil {
		return nil, ErrEmptyPayload
	}
	return result, nil
}

func (c *Client) runDetails(ctx context.Context, owner, repo string, runID int64, attempt int, noCache bool) (*github.RunDetails, error) {
	q := url.Values{}
	if attempt > 0 {
		q.Set("attempt", strconv.Itoa(attempt))
	}
	if noCache {
		q.Set("noCache", "true")
	}
	var details github.RunDetails
	if err := c.getJSON(ctx, runPath(owner, repo, runID), q, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// RunDetails fetches one attempt of a run with its jobs and commit. A
// non-positive attempt selects the latest. Empty answers are retried once
// like RunStatus.
func (c *Client) RunDetails(ctx context.Context, owner, repo string, runID int64, attempt int) (*github.RunDetails, error) {
	details, err := c.runDetails(ctx, owner, repo, runID, attempt, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %d: %w", runID, err)
	}
	if !details.IsEmpty() {
		return details, nil
	}

	details, err = c.runDetails(ctx, owner, repo, runID, attempt, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %d: %w", runID, err)
	}
	if details.IsEmpty() {
		return nil, ErrEmptyPayload
	}
	return details, nil
}

// Rerun re-runs a run. mode is api.RerunAll or api.RerunFailed.
func (c *Client) Rerun(ctx context.Context, owner, repo string, runID int64, mode string) error {
	resp, err := c.do(ctx, http.MethodPost, runPath(owner, repo, runID)+"/rerun", nil, api.RerunRequest{Type: mode}, nil)
	if err != nil {
		return fmt.Errorf("failed to re-run workflow %d: %w", runID, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// RerunJob re-runs a single job.
func (c *Client) RerunJob(ctx context.Context, owner, repo string, jobID int64) error {
	resp, err := c.do(ctx, http.MethodPost, jobPath(owner, repo, jobID)+"/rerun", nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to re-run job %d: %w", jobID, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// JobLogs downloads the log of one job.
func (c *Client) JobLogs(ctx context.Context, owner, repo string, jobID int64) (string, error) {
	var body api.LogsResponse
	if err := c.getJSON(ctx, jobPath(owner, repo, jobID)+"/logs", nil, &body); err != nil {
		return "", fmt.Errorf("failed to fetch logs for job %d: %w", jobID, err)
	}
	return body.Logs, nil
}
