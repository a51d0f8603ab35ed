package app

import (
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/logs"
)

// engineEventMsg wraps an engine event. ok is false once the subscription
// is closed.
type engineEventMsg struct {
	event engine.Event
	ok    bool
}

// FetchLogsMsg requests the logs of a run attempt.
type FetchLogsMsg struct {
	Run        github.WorkflowRun
	Details    *github.RunDetails
	ErrorsOnly bool
}

// LogsFetchedMsg contains fetched logs or an error.
type LogsFetchedMsg struct {
	Run        github.WorkflowRun
	Details    *github.RunDetails
	Logs       *logs.RunLogs
	ErrorsOnly bool
	Err        error
}

// DetailsFetchedMsg contains one attempt of a run or an error.
type DetailsFetchedMsg struct {
	Run     github.WorkflowRun
	Details *github.RunDetails
	Err     error
}

// streamUpdateMsg carries a log refresh for the open viewer.
type streamUpdateMsg struct {
	streamer *logs.LogStreamer
	update   logs.StreamUpdate
	ok       bool
}

// actionDoneMsg reports the outcome of a user action in the status line.
type actionDoneMsg struct {
	status string
	err    error
}
