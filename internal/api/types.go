// Package api defines the JSON contract between the dashboard server and its clients.
package api

import (
	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/github"
)

// UserInfo is returned by GET /api/auth/me.
type UserInfo struct {
	Authenticated bool            `json:"authenticated"`
	Username      string          `json:"username,omitempty"`
	GithubUserID  string          `json:"githubUserId,omitempty"`
	AvatarURL     string          `json:"avatarUrl,omitempty"`
	Email         string          `json:"email,omitempty"`
	ProfileURL    string          `json:"profileUrl,omitempty"`
	Name          string          `json:"name,omitempty"`
	BillingConfig *billing.Config `json:"billingConfig,omitempty"`
}

// BatchResponse is returned by GET /api/workflows/batch.
type BatchResponse struct {
	BatchID       string               `json:"batchId"`
	DateFrom      string               `json:"dateFrom"`
	DateTo        string               `json:"dateTo"`
	WorkflowCount int                  `json:"workflowCount"`
	Workflows     []github.WorkflowRun `json:"workflows"`
}

// RerunRequest is the body of a run re-run request.
type RerunRequest struct {
	Type string `json:"type"`
}

// RerunResponse acknowledges a re-run request.
type RerunResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LogsResponse carries a job log.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// ErrorResponse is the body of every non-2xx answer. MaxDays and UserTier are
// only present on quota rejections.
type ErrorResponse struct {
	Error    string       `json:"error"`
	MaxDays  int          `json:"maxDays,omitempty"`
	UserTier billing.Tier `json:"userTier,omitempty"`
}

// Rerun types accepted by the rerun endpoint.
const (
	RerunAll    = "all"
	RerunFailed = "failed"
)

// DateLayout is the day-resolution date format used by batch requests.
const DateLayout = "2006-01-02"
