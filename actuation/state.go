package actuation

// ExecutionState tracks the lifecycle of the most recent goal handed to the
// execution backend. Transitions are linear per goal: Dispatching is entered
// on submission, Executing once the backend accepts, and exactly one of the
// terminal states once the backend reports completion. A rejection
// short-circuits from Dispatching straight to Rejected.
type ExecutionState uint8

const (
	Idle ExecutionState = iota
	Dispatching
	Executing
	Succeeded
	Rejected
	Aborted
	Canceled
)

func (s ExecutionState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Dispatching:
		return "DISPATCHING"
	case Executing:
		return "EXECUTING"
	case Succeeded:
		return "SUCCEEDED"
	case Rejected:
		return "REJECTED"
	case Aborted:
		return "ABORTED"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition occurs without a new dispatch.
func (s ExecutionState) Terminal() bool {
	switch s {
	case Succeeded, Rejected, Aborted, Canceled:
		return true
	default:
		return false
	}
}

// InFlight reports whether a goal is currently being dispatched or executed.
func (s ExecutionState) InFlight() bool {
	return s == Dispatching || s == Executing
}

// ResultCode is the completion code reported by the execution backend for an
// accepted goal.
type ResultCode uint8

const (
	ResultSucceeded ResultCode = iota
	ResultAborted
	ResultCanceled
)

func (c ResultCode) String() string {
	switch c {
	case ResultSucceeded:
		return "SUCCEEDED"
	case ResultAborted:
		return "ABORTED"
	case ResultCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// state returns the terminal ExecutionState corresponding to the code.
func (c ResultCode) state() ExecutionState {
	switch c {
	case ResultSucceeded:
		return Succeeded
	case ResultCanceled:
		return Canceled
	default:
		return Aborted
	}
}
