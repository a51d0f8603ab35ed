package github

import "time"

// Repository identifies the repository a run belongs to.
type Repository struct {
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	FullName string `json:"fullName"`
}

// NewRepository builds a repository reference from owner and name.
func NewRepository(owner, name string) Repository {
	return Repository{Name: name, Owner: owner, FullName: owner + "/" + name}
}

// WorkflowRun represents a GitHub Actions workflow run as shown by the dashboard.
// ID is the only identity used when merging runs from different sources.
type WorkflowRun struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	Repository   Repository `json:"repository"`
	Branch       string     `json:"branch"`
	Event        string     `json:"event"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	RunStartedAt *time.Time `json:"runStartedAt,omitempty"`
	HTMLURL      string     `json:"htmlUrl"`
	RunNumber    int        `json:"runNumber"`
	WorkflowID   int64      `json:"workflowId,omitempty"`
	HeadSHA      string     `json:"headSha,omitempty"`
}

// RunStatus constants
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPending    = "pending"
)

// Conclusion constants
const (
	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
	ConclusionSkipped   = "skipped"
)

// IsActive returns true if the run is still in progress.
func (r WorkflowRun) IsActive() bool {
	return r.Status == StatusQueued || r.Status == StatusInProgress
}

// IsSuccess returns true if the run completed successfully.
func (r WorkflowRun) IsSuccess() bool {
	return r.Status == StatusCompleted && r.Conclusion == ConclusionSuccess
}

// IsFailed returns true if the run completed with a failure or was cancelled.
func (r WorkflowRun) IsFailed() bool {
	return r.Status == StatusCompleted &&
		(r.Conclusion == ConclusionFailure || r.Conclusion == ConclusionCancelled)
}

// ShortSHA returns the first seven characters of the head commit.
func (r WorkflowRun) ShortSHA() string {
	if len(r.HeadSHA) > 7 {
		return r.HeadSHA[:7]
	}
	return r.HeadSHA
}

// Job represents a job within a workflow run.
type Job struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	HTMLURL     string     `json:"htmlUrl"`
	Steps       []Step     `json:"steps"`
}

// Step represents a step within a job.
type Step struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion"`
	Number      int        `json:"number"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CommitAuthor is the author block of a commit.
type CommitAuthor struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Commit is the head commit of a run.
type Commit struct {
	SHA     string       `json:"sha"`
	Message string       `json:"message"`
	Author  CommitAuthor `json:"author"`
	URL     string       `json:"url"`
}

// RunDetails is one attempt of a run with its jobs and head commit.
// Status and Conclusion describe the attempt, derived from its jobs.
type RunDetails struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	RunNumber        int        `json:"runNumber"`
	Status           string     `json:"status"`
	Conclusion       string     `json:"conclusion"`
	Event            string     `json:"event"`
	Branch           string     `json:"branch"`
	HTMLURL          string     `json:"htmlUrl"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	AttemptStartedAt *time.Time `json:"attemptStartedAt,omitempty"`
	Duration         *int64     `json:"duration,omitempty"`
	RunAttempt       int        `json:"runAttempt"`
	CurrentAttempt   int        `json:"currentAttempt"`
	Repository       Repository `json:"repository"`
	Commit           Commit     `json:"commit"`
	Jobs             []Job      `json:"jobs"`
}

// IsEmpty reports whether the payload carries no run at all.
func (d RunDetails) IsEmpty() bool {
	return d.ID == 0
}
