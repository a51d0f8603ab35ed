package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	cfg := sess.billing
	writeJSON(w, http.StatusOK, api.UserInfo{
		Authenticated: true,
		Username:      sess.user.Login,
		GithubUserID:  strconv.FormatInt(sess.user.ID, 10),
		AvatarURL:     sess.user.AvatarURL,
		Email:         sess.user.Email,
		ProfileURL:    sess.user.HTMLURL,
		Name:          sess.user.Name,
		BillingConfig: &cfg,
	})
}

// rangeDays is the day span between two YYYY-MM-DD dates, rounded up.
func rangeDays(from, to string) (int, error) {
	f, err := time.Parse(api.DateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("invalid dateFrom %q", from)
	}
	t, err := time.Parse(api.DateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("invalid dateTo %q", to)
	}
	return int(math.Ceil(t.Sub(f).Hours() / 24)), nil
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	q := r.URL.Query()
	dateFrom, dateTo := q.Get("dateFrom"), q.Get("dateTo")
	batchID := q.Get("batchId")
	if batchID == "" {
		batchID = "unknown"
	}

	if dateFrom == "" || dateTo == "" {
		writeError(w, http.StatusBadRequest, "Missing dateFrom or dateTo parameters")
		return
	}
	days, err := rangeDays(dateFrom, dateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days > sess.billing.MaxDays {
		s.metrics.quota.Inc()
		writeJSON(w, http.StatusForbidden, api.ErrorResponse{
			Error: fmt.Sprintf("Date range exceeds allowed limit of %d days for %s tier",
				sess.billing.MaxDays, sess.billing.UserTier),
			MaxDays:  sess.billing.MaxDays,
			UserTier: sess.billing.UserTier,
		})
		return
	}

	repos, err := s.listRepos(r.Context(), sess)
	if err != nil {
		s.metrics.upstream.WithLabelValues("repos").Inc()
		s.log.Error("failed to list repositories", zap.String("user", sess.user.Login), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch workflow batch")
		return
	}

	results := make([][]github.WorkflowRun, len(repos))
	g, gctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.cfg.FanOut)
	for i, repo := range repos {
		g.Go(func() error {
			runs, err := sess.gh.ListRunsCreated(gctx, repo.Owner.Login, repo.Name, dateFrom, dateTo)
			if err != nil {
				s.metrics.upstream.WithLabelValues("runs").Inc()
				s.log.Debug("skipping repository", zap.String("repo", repo.FullName), zap.Error(err))
				return nil
			}
			results[i] = github.MapWorkflowRuns(runs, repo.Owner.Login, repo.Name)
			return nil
		})
	}
	_ = g.Wait()

	all := make([]github.WorkflowRun, 0)
	for _, runs := range results {
		all = append(all, runs...)
	}
	workflows.Sort(all)

	writeJSON(w, http.StatusOK, api.BatchResponse{
		BatchID:       batchID,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		WorkflowCount: len(all),
		Workflows:     all,
	})
}

func (s *Server) listRepos(ctx context.Context, sess *session) ([]github.APIRepo, error) {
	if s.cfg.Org != "" {
		return sess.gh.ListOrgRepos(ctx, s.cfg.Org)
	}
	return sess.gh.ListUserRepos(ctx, !sess.billing.CanViewOrgWorkflows)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")

	perPage := 50
	if v := r.URL.Query().Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "Invalid per_page parameter (must be between 1 and 100)")
			return
		}
		perPage = n
	}

	runs, err := sess.gh.ListRuns(r.Context(), owner, repo, perPage)
	if err != nil {
		s.metrics.upstream.WithLabelValues("runs").Inc()
		s.log.Error("failed to list runs", zap.String("repo", owner+"/"+repo), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch workflow runs")
		return
	}
	writeJSON(w, http.StatusOK, github.MapWorkflowRuns(runs, owner, repo))
}

func setValidators(h http.Header, etag, lastModified string) {
	if etag != "" {
		h.Set("ETag", etag)
	}
	if lastModified != "" {
		h.Set("Last-Modified", lastModified)
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")

	page, err := sess.gh.SyncRuns(r.Context(), owner, repo, github.Validators{
		ETag:         r.Header.Get("If-None-Match"),
		LastModified: r.Header.Get("If-Modified-Since"),
	})
	if err != nil {
		if github.IsNotFound(err) {
			writeJSON(w, http.StatusOK, []github.WorkflowRun{})
			return
		}
		s.metrics.upstream.WithLabelValues("sync").Inc()
		s.log.Error("failed to sync workflows", zap.String("repo", owner+"/"+repo), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to sync workflows")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	setValidators(w.Header(), page.Validators.ETag, page.Validators.LastModified)
	if page.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, github.MapWorkflowRuns(page.Runs, owner, repo))
}

func parsePositiveID(w http.ResponseWriter, raw, what string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (must be a positive integer)", what))
		return 0, false
	}
	return id, true
}

// conditionalETag returns the caller's If-None-Match unless noCache=true.
func conditionalETag(r *http.Request) string {
	if r.URL.Query().Get("noCache") == "true" {
		return ""
	}
	return r.Header.Get("If-None-Match")
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	runID, ok := parsePositiveID(w, chi.URLParam(r, "runId"), "run ID")
	if !ok {
		return
	}

	res, err := sess.gh.GetRun(r.Context(), owner, repo, runID, conditionalETag(r))
	if err != nil {
		s.metrics.upstream.WithLabelValues("status").Inc()
		s.log.Error("failed to fetch run status", zap.Int64("run", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch workflow run status")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	setValidators(w.Header(), res.ETag, "")
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, github.MapWorkflowRun(*res.Run, owner, repo))
}

func (s *Server) handleRunDetails(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	runID, ok := parsePositiveID(w, chi.URLParam(r, "runId"), "run ID")
	if !ok {
		return
	}

	attempt := 0
	if v := r.URL.Query().Get("attempt"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid attempt parameter (must be a positive integer)")
			return
		}
		attempt = n
	}

	res, err := sess.gh.GetRun(r.Context(), owner, repo, runID, conditionalETag(r))
	if err != nil {
		s.detailsFailed(w, runID, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	setValidators(w.Header(), res.ETag, "")
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	run := *res.Run
	if attempt == 0 {
		attempt = run.RunAttempt
	}
	jobsAttempt := 0
	if attempt != run.RunAttempt {
		jobsAttempt = attempt
	}

	var (
		jobs   []github.APIJob
		commit *github.APICommit
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		jobs, err = sess.gh.ListJobs(gctx, owner, repo, runID, jobsAttempt)
		return err
	})
	g.Go(func() error {
		var err error
		commit, err = sess.gh.GetCommit(gctx, owner, repo, run.HeadSHA)
		return err
	})
	if err := g.Wait(); err != nil {
		s.detailsFailed(w, runID, err)
		return
	}

	writeJSON(w, http.StatusOK, github.MapRunDetails(run, jobs, *commit, owner, repo, attempt))
}

func (s *Server) detailsFailed(w http.ResponseWriter, runID int64, err error) {
	s.metrics.upstream.WithLabelValues("details").Inc()
	s.log.Error("failed to fetch workflow details", zap.Int64("run", runID), zap.Error(err))
	w.Header().Del("ETag")
	writeError(w, http.StatusInternalServerError, "Failed to fetch workflow details")
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	runID, ok := parsePositiveID(w, chi.URLParam(r, "runId"), "run ID")
	if !ok {
		return
	}

	var req api.RerunRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var err error
	if req.Type == api.RerunFailed {
		err = sess.gh.RerunFailedJobs(r.Context(), owner, repo, runID)
	} else {
		err = sess.gh.RerunRun(r.Context(), owner, repo, runID)
	}
	if err != nil {
		s.metrics.upstream.WithLabelValues("rerun").Inc()
		s.log.Error("failed to re-run workflow", zap.Int64("run", runID), zap.String("type", req.Type), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to re-run workflow")
		return
	}

	s.log.Info("workflow re-run initiated",
		zap.String("user", sess.user.Login), zap.Int64("run", runID), zap.String("type", req.Type))
	writeJSON(w, http.StatusOK, api.RerunResponse{Success: true, Message: "Workflow re-run initiated"})
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	jobID, ok := parsePositiveID(w, chi.URLParam(r, "jobId"), "job ID")
	if !ok {
		return
	}

	logs, err := sess.gh.JobLogs(r.Context(), owner, repo, jobID)
	if err != nil {
		s.metrics.upstream.WithLabelValues("logs").Inc()
		s.log.Error("failed to fetch job logs", zap.Int64("job", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch job logs")
		return
	}
	writeJSON(w, http.StatusOK, api.LogsResponse{Logs: logs})
}

func (s *Server) handleRerunJob(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	jobID, ok := parsePositiveID(w, chi.URLParam(r, "jobId"), "job ID")
	if !ok {
		return
	}

	if err := sess.gh.RerunJob(r.Context(), owner, repo, jobID); err != nil {
		s.metrics.upstream.WithLabelValues("rerun_job").Inc()
		s.log.Error("failed to re-run job", zap.Int64("job", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to re-run job")
		return
	}
	writeJSON(w, http.StatusOK, api.RerunResponse{Success: true, Message: "Job re-run initiated"})
}
