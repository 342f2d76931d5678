package actuation

// The interfaces in this file form the middleware boundary. The dispatcher
// talks to whatever executes trajectories only through them; adapters for a
// concrete transport live elsewhere (see transport/mqttbridge).

// GoalEventHandler receives lifecycle notifications for a single sent goal.
// Callbacks are invoked from the transport's worker goroutines and must not
// block.
type GoalEventHandler interface {
	// GoalAccepted is called once when the backend admits the goal for
	// execution.
	GoalAccepted()
	// GoalRejected is called once, instead of GoalAccepted, when the backend
	// declines the goal.
	GoalRejected(reason string)
	// GoalFinished is called once after GoalAccepted with the terminal
	// completion code.
	GoalFinished(code ResultCode, text string)
}

// GoalHandle refers to a goal in flight at the backend.
type GoalHandle interface {
	// ID returns the unique identifier assigned to the goal on submission.
	ID() string
	// Cancel requests cooperative cancellation. Completion is still reported
	// through the goal's event handler.
	Cancel() error
}

// TrajectoryClient submits goals to the trajectory execution service.
type TrajectoryClient interface {
	// SendGoal submits the goal asynchronously. Lifecycle events for it are
	// delivered to the supplied handler until one of the terminal callbacks
	// fires.
	SendGoal(goal Goal, events GoalEventHandler) (GoalHandle, error)
}

// Planner resolves a target joint configuration into an executable
// trajectory. Only consulted in planned mode, and only when client-side
// planning is configured; otherwise planned goals are resolved by the
// backend.
type Planner interface {
	PlanToConfiguration(groupName string, jointNames []string, targetPositions []float64) (JointTrajectory, error)
}

// ResetChannel applies a joint configuration directly, without trajectory
// execution semantics. Only available on backends that support instantaneous
// joint reset, such as simulators.
type ResetChannel interface {
	// Reset assigns the given positions to the named joints. When sync is
	// true the call blocks until the backend acknowledges the assignment.
	Reset(jointNames []string, positions []float64, sync bool) error
}
