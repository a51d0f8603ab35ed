package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/github"
)

const upstream = "https://api.github.com"

type fakeTiers map[string]billing.Tier

func (f fakeTiers) Tier(_ context.Context, id string) (billing.Tier, error) {
	if id == "500" {
		return "", errors.New("store down")
	}
	return f[id], nil
}

type harness struct {
	srv       *Server
	transport *httpmock.MockTransport
	userCalls atomic.Int32
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{transport: httpmock.NewMockTransport()}
	cfg.APIURL = upstream
	h.srv = New(cfg, fakeTiers{"42": billing.TierPaid}, nil, WithTransport(h.transport))

	h.transport.RegisterResponder(http.MethodGet, upstream+"/user",
		func(req *http.Request) (*http.Response, error) {
			h.userCalls.Add(1)
			if req.Header.Get("Authorization") == "token bad" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{"message":"Bad credentials"}`), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, github.APIUser{
				ID: 7, Login: "octo", Name: "Octo Cat", HTMLURL: "https://github.com/octo",
			})
		})
	return h
}

func (h *harness) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer good")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuth_MissingToken(t *testing.T) {
	h := newHarness(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeBody[api.ErrorResponse](t, rec).Error)
	assert.Zero(t, h.userCalls.Load())
}

func TestAuth_RejectedToken(t *testing.T) {
	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodGet, "/api/auth/me", "", http.Header{"Authorization": {"token bad"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"token abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestHandleMe(t *testing.T) {
	h := newHarness(t, Config{BillingEnabled: true})
	rec := h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	info := decodeBody[api.UserInfo](t, rec)
	assert.True(t, info.Authenticated)
	assert.Equal(t, "octo", info.Username)
	assert.Equal(t, "7", info.GithubUserID)
	assert.Equal(t, "https://github.com/octo", info.ProfileURL)
	require.NotNil(t, info.BillingConfig)
	assert.Equal(t, billing.TierFree, info.BillingConfig.UserTier)
	assert.Equal(t, 7, info.BillingConfig.MaxDays)
}

func TestUserLookupIsCachedUntilTTL(t *testing.T) {
	h := newHarness(t, Config{UserTTL: time.Minute})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	h.srv.users.now = func() time.Time { return now }

	h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, int32(1), h.userCalls.Load())

	now = now.Add(2 * time.Minute)
	h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, int32(2), h.userCalls.Load())
}

func TestHandleBatch_Validation(t *testing.T) {
	h := newHarness(t, Config{BillingEnabled: true})

	rec := h.do(t, http.MethodGet, "/api/workflows/batch?dateFrom=2024-05-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing dateFrom or dateTo parameters", decodeBody[api.ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodGet, "/api/workflows/batch?dateFrom=yesterday&dateTo=2024-05-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBatch_QuotaExceeded(t *testing.T) {
	h := newHarness(t, Config{BillingEnabled: true})
	rec := h.do(t, http.MethodGet, "/api/workflows/batch?dateFrom=2024-04-01&dateTo=2024-04-15", "", nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "Date range exceeds allowed limit of 7 days for free tier", body.Error)
	assert.Equal(t, 7, body.MaxDays)
	assert.Equal(t, billing.TierFree, body.UserTier)

	metrics := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), "actionboard_quota_rejections_total 1")
}

func TestHandleBatch_FansOutAndSkipsFailedRepos(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/user/repos",
		func(req *http.Request) (*http.Response, error) {
			assert.Empty(t, req.URL.Query().Get("affiliation"), "billing disabled grants org repos")
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"name":"api","full_name":"acme/api","owner":{"login":"acme"}},
				{"name":"web","full_name":"acme/web","owner":{"login":"acme"}}
			]`), nil
		})
	early := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "2024-04-28..2024-05-01", req.URL.Query().Get("created"))
			return httpmock.NewJsonResponse(http.StatusOK, github.RunsResponse{WorkflowRuns: []github.APIRun{
				{ID: 1, Name: "CI", Status: github.StatusCompleted, UpdatedAt: early},
				{ID: 2, Name: "Deploy", Status: github.StatusInProgress, UpdatedAt: early.Add(time.Hour)},
			}})
		})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/web/actions/runs",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"message":"boom"}`))

	rec := h.do(t, http.MethodGet, "/api/workflows/batch?dateFrom=2024-04-28&dateTo=2024-05-01&batchId=batch-0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[api.BatchResponse](t, rec)
	assert.Equal(t, "batch-0", body.BatchID)
	assert.Equal(t, 2, body.WorkflowCount)
	require.Len(t, body.Workflows, 2)
	assert.Equal(t, int64(2), body.Workflows[0].ID, "most recently updated first")
	assert.Equal(t, "acme/api", body.Workflows[0].Repository.FullName)
}

func TestHandleBatch_OrgScope(t *testing.T) {
	h := newHarness(t, Config{Org: "acme"})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/orgs/acme/repos",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	rec := h.do(t, http.MethodGet, "/api/workflows/batch?dateFrom=2024-04-28&dateTo=2024-05-01", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[api.BatchResponse](t, rec)
	assert.Equal(t, "unknown", body.BatchID)
	assert.NotNil(t, body.Workflows)
	assert.Empty(t, body.Workflows)
}

func TestHandleListRuns_PerPage(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs",
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(http.StatusOK, github.RunsResponse{
				WorkflowRuns: []github.APIRun{{ID: 9, Name: req.URL.Query().Get("per_page")}},
			})
		})

	rec := h.do(t, http.MethodGet, "/api/workflows/acme/api", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeBody[[]github.WorkflowRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "50", runs[0].Name)

	for _, bad := range []string{"0", "101", "x"} {
		rec := h.do(t, http.MethodGet, "/api/workflows/acme/api?per_page="+bad, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "per_page=%s", bad)
	}
}

func TestHandleSync_PassesValidatorsThrough(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("If-None-Match") == `"v1"` {
				resp := httpmock.NewStringResponse(http.StatusNotModified, "")
				resp.Header.Set("ETag", `"v1"`)
				return resp, nil
			}
			resp, err := httpmock.NewJsonResponse(http.StatusOK, github.RunsResponse{
				WorkflowRuns: []github.APIRun{{ID: 3}},
			})
			resp.Header.Set("ETag", `"v1"`)
			resp.Header.Set("Last-Modified", "Wed, 01 May 2024 10:00:00 GMT")
			return resp, err
		})

	rec := h.do(t, http.MethodGet, "/api/workflows/acme/api/sync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))
	assert.Equal(t, "Wed, 01 May 2024 10:00:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Len(t, decodeBody[[]github.WorkflowRun](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/api/workflows/acme/api/sync", "", http.Header{"If-None-Match": {`"v1"`}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Body.String())
}

func TestHandleSync_MissingRepoIsEmpty(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/gone/actions/runs",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"Not Found"}`))

	rec := h.do(t, http.MethodGet, "/api/workflows/acme/gone/sync", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleRunStatus_NoCacheDropsETag(t *testing.T) {
	h := newHarness(t, Config{})
	var seen []string
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs/11",
		func(req *http.Request) (*http.Response, error) {
			seen = append(seen, req.Header.Get("If-None-Match"))
			if req.Header.Get("If-None-Match") != "" {
				return httpmock.NewStringResponse(http.StatusNotModified, ""), nil
			}
			resp, err := httpmock.NewJsonResponse(http.StatusOK, github.APIRun{ID: 11, Status: github.StatusQueued})
			resp.Header.Set("ETag", `"s1"`)
			return resp, err
		})

	etag := http.Header{"If-None-Match": {`"s0"`}}
	rec := h.do(t, http.MethodGet, "/api/workflows/acme/api/11/status", "", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = h.do(t, http.MethodGet, "/api/workflows/acme/api/11/status?noCache=true", "", etag)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"s1"`, rec.Header().Get("ETag"))
	assert.Equal(t, github.StatusQueued, decodeBody[github.WorkflowRun](t, rec).Status)

	assert.Equal(t, []string{`"s0"`, ""}, seen)
}

func TestHandleRunDetails_Attempts(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs/11",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, github.APIRun{ID: 11, HeadSHA: "abc", RunAttempt: 3}))
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs/11/jobs",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, github.JobsResponse{Jobs: []github.APIJob{{ID: 1, Name: "latest"}}}))
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/runs/11/attempts/1/jobs",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, github.JobsResponse{Jobs: []github.APIJob{{ID: 2, Name: "first"}}}))
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/commits/abc",
		httpmock.NewStringResponder(http.StatusOK, `{"sha":"abc","commit":{"message":"fix"}}`))

	tests := []struct {
		query       string
		wantJob     string
		wantCurrent int
	}{
		{"", "latest", 3},
		{"?attempt=3", "latest", 3},
		{"?attempt=1", "first", 1},
	}
	for _, tt := range tests {
		rec := h.do(t, http.MethodGet, "/api/workflows/acme/api/11"+tt.query, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		d := decodeBody[github.RunDetails](t, rec)
		require.Len(t, d.Jobs, 1)
		assert.Equal(t, tt.wantJob, d.Jobs[0].Name, tt.query)
		assert.Equal(t, tt.wantCurrent, d.CurrentAttempt, tt.query)
		assert.Equal(t, 3, d.RunAttempt)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}

	rec := h.do(t, http.MethodGet, "/api/workflows/acme/api/11?attempt=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid attempt parameter (must be a positive integer)", decodeBody[api.ErrorResponse](t, rec).Error)
}

func TestHandleRerun(t *testing.T) {
	h := newHarness(t, Config{})
	var hits []string
	record := func(req *http.Request) (*http.Response, error) {
		hits = append(hits, req.URL.Path)
		return httpmock.NewStringResponse(http.StatusCreated, "{}"), nil
	}
	h.transport.RegisterResponder(http.MethodPost, upstream+"/repos/acme/api/actions/runs/11/rerun", record)
	h.transport.RegisterResponder(http.MethodPost, upstream+"/repos/acme/api/actions/runs/11/rerun-failed-jobs", record)

	rec := h.do(t, http.MethodPost, "/api/workflows/acme/api/11/rerun", `{"type":"failed"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.RerunResponse{Success: true, Message: "Workflow re-run initiated"}, decodeBody[api.RerunResponse](t, rec))

	rec = h.do(t, http.MethodPost, "/api/workflows/acme/api/11/rerun", `{"type":"all"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/workflows/acme/api/11/rerun", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{
		"/repos/acme/api/actions/runs/11/rerun-failed-jobs",
		"/repos/acme/api/actions/runs/11/rerun",
		"/repos/acme/api/actions/runs/11/rerun",
	}, hits)

	rec = h.do(t, http.MethodPost, "/api/workflows/acme/api/-4/rerun", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid run ID (must be a positive integer)", decodeBody[api.ErrorResponse](t, rec).Error)
}

func TestHandleRerun_UpstreamFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodPost, upstream+"/repos/acme/api/actions/runs/11/rerun",
		httpmock.NewStringResponder(http.StatusForbidden, `{"message":"nope"}`))

	rec := h.do(t, http.MethodPost, "/api/workflows/acme/api/11/rerun", `{"type":"all"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to re-run workflow", decodeBody[api.ErrorResponse](t, rec).Error)
}

func TestHandleJobs(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.RegisterResponder(http.MethodGet, upstream+"/repos/acme/api/actions/jobs/5/logs",
		httpmock.NewStringResponder(http.StatusOK, "2024-05-01T10:00:00Z hello\n"))
	h.transport.RegisterResponder(http.MethodPost, upstream+"/repos/acme/api/actions/jobs/5/rerun",
		httpmock.NewStringResponder(http.StatusCreated, "{}"))

	rec := h.do(t, http.MethodGet, "/api/workflows/acme/api/jobs/5/logs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-05-01T10:00:00Z hello\n", decodeBody[api.LogsResponse](t, rec).Logs)

	rec = h.do(t, http.MethodPost, "/api/workflows/acme/api/jobs/5/rerun", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Job re-run initiated", decodeBody[api.RerunResponse](t, rec).Message)

	rec = h.do(t, http.MethodGet, "/api/workflows/acme/api/jobs/zero/logs", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid job ID (must be a positive integer)", decodeBody[api.ErrorResponse](t, rec).Error)
}

func TestHealthzSkipsAuth(t *testing.T) {
	h := newHarness(t, Config{})
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRangeDays(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2024-05-01", "2024-05-01", 0},
		{"2024-04-24", "2024-05-01", 7},
		{"2024-04-01", "2024-05-01", 30},
	}
	for _, tt := range tests {
		got, err := rangeDays(tt.from, tt.to)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("rangeDays(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTierLookupFailureFallsBackToFree(t *testing.T) {
	s := New(Config{BillingEnabled: true}, fakeTiers{}, nil)
	assert.Equal(t, billing.TierFree, s.tier(context.Background(), 500))
	assert.Equal(t, billing.TierFree, New(Config{}, nil, nil).tier(context.Background(), 42))

	paid := New(Config{}, fakeTiers{"42": billing.TierPaid}, nil)
	assert.Equal(t, billing.TierPaid, paid.tier(context.Background(), 42))
}
