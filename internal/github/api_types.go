package github

import "time"

// APIRun is a workflow run as returned by the GitHub REST API.
type APIRun struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Conclusion   *string    `json:"conclusion"`
	HeadBranch   string     `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	Event        string     `json:"event"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
	HTMLURL      string     `json:"html_url"`
	RunNumber    int        `json:"run_number"`
	RunAttempt   int        `json:"run_attempt"`
	WorkflowID   int64      `json:"workflow_id"`
}

// APIStep is a job step as returned by the GitHub REST API.
type APIStep struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  *string    `json:"conclusion"`
	Number      int        `json:"number"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// APIJob is a job as returned by the GitHub REST API.
type APIJob struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  *string    `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	HTMLURL     string     `json:"html_url"`
	Steps       []APIStep  `json:"steps"`
}

// APICommit is a commit as returned by the GitHub REST API.
type APICommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  *struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		AvatarURL string `json:"avatar_url"`
	} `json:"author"`
}

// APIRepo is a repository as returned by the GitHub REST API.
type APIRepo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// APIUser is the authenticated user as returned by GET /user.
type APIUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

// JobsResponse represents the API response for listing jobs.
type JobsResponse struct {
	TotalCount int      `json:"total_count"`
	Jobs       []APIJob `json:"jobs"`
}

// RunsResponse represents the API response for listing runs.
type RunsResponse struct {
	TotalCount   int      `json:"total_count"`
	WorkflowRuns []APIRun `json:"workflow_runs"`
}
