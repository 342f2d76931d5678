package actuation

// ExecutionGate decides whether a new command may be dispatched given the
// current execution state. It carries no state of its own; the decision is
// evaluated synchronously before every dispatch attempt.
type ExecutionGate struct {
	// IgnoreNewCallsWhileExecuting drops new commands while a previous one
	// is still in flight instead of overwriting its tracking.
	IgnoreNewCallsWhileExecuting bool
}

// Admit reports whether a new dispatch is allowed. A false return means the
// command is silently dropped: no error, no queueing, and the in-flight goal
// keeps executing. When admission succeeds while a goal is in flight, the new
// dispatch overwrites tracking of the previous one without cancelling it.
func (g ExecutionGate) Admit(state ExecutionState) bool {
	if g.IgnoreNewCallsWhileExecuting && state.InFlight() {
		return false
	}
	return true
}
