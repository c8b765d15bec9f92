package transfer

import "fmt"

// State is the lifecycle state a background job reports through a Signal.
type State int

const (
	StateEnqueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState is the inverse of State.String. Unknown names map to StateBlocked
// so that they are ignored by consumers.
func ParseState(s string) State {
	for st := StateEnqueued; st <= StateBlocked; st++ {
		if st.String() == s {
			return st
		}
	}

	return StateBlocked
}

// IsFinished reports whether no further signals follow this state for a job.
func (s State) IsFinished() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Signal is a single lifecycle event emitted by the job scheduler.
type Signal struct {
	Tag        string
	State      State
	Progress   int    // 0-100, meaningful while running
	OutputPath string // set on success
	Message    string // set on failure or cancellation

	// Replayed marks a terminal signal re-emitted for a job finished by an
	// earlier process.
	Replayed bool
}

func Enqueued(tag string) Signal {
	return Signal{Tag: tag, State: StateEnqueued}
}

func Running(tag string, progress int) Signal {
	return Signal{Tag: tag, State: StateRunning, Progress: progress}
}

func Succeeded(tag, outputPath string) Signal {
	return Signal{Tag: tag, State: StateSucceeded, Progress: 100, OutputPath: outputPath}
}

func Failed(tag, message string) Signal {
	return Signal{Tag: tag, State: StateFailed, Message: message}
}

func Cancelled(tag, message string) Signal {
	return Signal{Tag: tag, State: StateCancelled, Message: message}
}
