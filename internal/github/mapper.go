package github

import "time"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MapWorkflowRun converts an API run into the dashboard representation.
func MapWorkflowRun(run APIRun, owner, repo string) WorkflowRun {
	conclusion := deref(run.Conclusion)
	if run.Status != StatusCompleted {
		conclusion = ""
	}
	return WorkflowRun{
		ID:           run.ID,
		Name:         run.Name,
		Status:       run.Status,
		Conclusion:   conclusion,
		Repository:   NewRepository(owner, repo),
		Branch:       run.HeadBranch,
		Event:        run.Event,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
		RunStartedAt: run.RunStartedAt,
		HTMLURL:      run.HTMLURL,
		RunNumber:    run.RunNumber,
		WorkflowID:   run.WorkflowID,
		HeadSHA:      run.HeadSHA,
	}
}

// MapWorkflowRuns converts a page of API runs.
func MapWorkflowRuns(runs []APIRun, owner, repo string) []WorkflowRun {
	out := make([]WorkflowRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, MapWorkflowRun(r, owner, repo))
	}
	return out
}

// MapJob converts an API job with its steps.
func MapJob(job APIJob) Job {
	steps := make([]Step, 0, len(job.Steps))
	for _, s := range job.Steps {
		steps = append(steps, Step{
			Name:        s.Name,
			Status:      s.Status,
			Conclusion:  deref(s.Conclusion),
			Number:      s.Number,
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
		})
	}
	return Job{
		ID:          job.ID,
		Name:        job.Name,
		Status:      job.Status,
		Conclusion:  deref(job.Conclusion),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		HTMLURL:     job.HTMLURL,
		Steps:       steps,
	}
}

// MapCommit converts an API commit.
func MapCommit(c APICommit) Commit {
	out := Commit{
		SHA:     c.SHA,
		Message: c.Commit.Message,
		URL:     c.HTMLURL,
		Author:  CommitAuthor{Name: "Unknown"},
	}
	if c.Commit.Author != nil {
		out.Author.Name = c.Commit.Author.Name
		out.Author.Email = c.Commit.Author.Email
	}
	if c.Author != nil {
		out.Author.Avatar = c.Author.AvatarURL
	}
	return out
}

// AttemptDuration returns the attempt duration and start time from its jobs.
// It prefers the span of fully timed jobs, then the earliest job start up to
// updatedAt, and finally createdAt to updatedAt.
func AttemptDuration(jobs []APIJob, createdAt, updatedAt time.Time) (*int64, *time.Time) {
	var start, end time.Time
	for _, j := range jobs {
		if j.StartedAt == nil || j.CompletedAt == nil {
			continue
		}
		if start.IsZero() || j.StartedAt.Before(start) {
			start = *j.StartedAt
		}
		if j.CompletedAt.After(end) {
			end = *j.CompletedAt
		}
	}
	if !start.IsZero() {
		d := end.Sub(start).Milliseconds()
		return &d, &start
	}

	for _, j := range jobs {
		if j.StartedAt == nil {
			continue
		}
		if start.IsZero() || j.StartedAt.Before(start) {
			start = *j.StartedAt
		}
	}
	if !start.IsZero() && !updatedAt.IsZero() {
		d := updatedAt.Sub(start).Milliseconds()
		return &d, &start
	}

	if !createdAt.IsZero() && !updatedAt.IsZero() {
		d := updatedAt.Sub(createdAt).Milliseconds()
		s := createdAt
		return &d, &s
	}
	return nil, nil
}

// AttemptStatus derives the status and conclusion of an attempt from its jobs.
func AttemptStatus(jobs []APIJob, fallbackConclusion string) (string, string) {
	var queued, failed, cancelled bool
	allSuccessful := true
	for _, j := range jobs {
		if j.Status == StatusInProgress {
			return StatusInProgress, ""
		}
		if j.Status == StatusQueued || j.Status == StatusPending {
			queued = true
		}
		switch deref(j.Conclusion) {
		case ConclusionFailure:
			failed = true
		case ConclusionCancelled:
			cancelled = true
		case ConclusionSuccess, ConclusionSkipped:
		default:
			allSuccessful = false
		}
	}
	if queued {
		return StatusQueued, ""
	}

	switch {
	case failed:
		return StatusCompleted, ConclusionFailure
	case cancelled:
		return StatusCompleted, ConclusionCancelled
	case allSuccessful:
		return StatusCompleted, ConclusionSuccess
	default:
		return StatusCompleted, fallbackConclusion
	}
}

// MapRunDetails assembles the details of one attempt.
func MapRunDetails(run APIRun, jobs []APIJob, commit APICommit, owner, repo string, attempt int) RunDetails {
	duration, startedAt := AttemptDuration(jobs, run.CreatedAt, run.UpdatedAt)
	status, conclusion := AttemptStatus(jobs, deref(run.Conclusion))

	mapped := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		mapped = append(mapped, MapJob(j))
	}

	return RunDetails{
		ID:               run.ID,
		Name:             run.Name,
		RunNumber:        run.RunNumber,
		Status:           status,
		Conclusion:       conclusion,
		Event:            run.Event,
		Branch:           run.HeadBranch,
		HTMLURL:          run.HTMLURL,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
		AttemptStartedAt: startedAt,
		Duration:         duration,
		RunAttempt:       run.RunAttempt,
		CurrentAttempt:   attempt,
		Repository:       NewRepository(owner, repo),
		Commit:           MapCommit(commit),
		Jobs:             mapped,
	}
}
