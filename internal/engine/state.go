package engine

// State is the engine's load state.
type State int

const (
	Idle State = iota
	InitialLoad
	BackgroundLoad
	FullRefresh
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InitialLoad:
		return "initial_load"
	case BackgroundLoad:
		return "background_load"
	case FullRefresh:
		return "full_refresh"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Blocking reports whether the collection is being rebuilt and the UI
// should show a loading screen.
func (s State) Blocking() bool {
	return s == InitialLoad || s == FullRefresh
}

// Loading reports whether batches are being fetched.
func (s State) Loading() bool {
	return s == InitialLoad || s == FullRefresh || s == BackgroundLoad
}

// EventKind identifies what changed.
type EventKind int

const (
	// EventRuns means the collection changed.
	EventRuns EventKind = iota
	// EventState means the load state changed.
	EventState
	// EventBatch means a batch finished; Err is set when it failed.
	EventBatch
	// EventRetrying means a run's re-run marker was set or cleared.
	EventRetrying
)

// Event is broadcast to subscribers after every change.
type Event struct {
	Kind     EventKind
	State    State
	BatchID  string
	Err      error
	RunID    int64
	Retrying bool
}
