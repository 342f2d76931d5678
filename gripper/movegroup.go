package gripper

import (
	"github.com/pkg/errors"

	modular "github.com/edwinhayes/logrus-modular"

	"github.com/team-rocos/gripcmd/actuation"
	"github.com/team-rocos/gripcmd/jointstate"
)

// MoveGroupCommand is the generic command interface for a single joint
// group: it builds trajectory goals for target configurations, dispatches
// them through an admission-gated dispatcher, and exposes execution
// tracking. GripperCommand composes one of these rather than extending it.
type MoveGroupCommand struct {
	jointNames []string
	groupName  string

	dispatcher *actuation.Dispatcher
	tracker    *jointstate.Tracker
	planner    actuation.Planner
	reset      actuation.ResetChannel

	skipPlanning  bool
	fixedDuration actuation.Duration

	logger *modular.ModuleLogger
}

// MoveGroupDeps are the middleware collaborators of a MoveGroupCommand.
// Trajectory, States and Logger are required; Planner enables client-side
// planning in planned mode and Reset enables the direct reset channel.
type MoveGroupDeps struct {
	Trajectory actuation.TrajectoryClient
	States     *jointstate.Tracker
	Planner    actuation.Planner
	Reset      actuation.ResetChannel
	Logger     *modular.ModuleLogger
}

// NewMoveGroupCommand validates the joint group description and wires the
// command interface to its middleware collaborators.
func NewMoveGroupCommand(groupName string, jointNames []string, ignoreNewCallsWhileExecuting, skipPlanning bool, fixedMotionDuration float64, deps MoveGroupDeps) (*MoveGroupCommand, error) {
	if len(jointNames) == 0 {
		return nil, errors.New("at least one joint name is required")
	}
	if deps.Trajectory == nil {
		return nil, errors.New("a trajectory client is required")
	}
	if deps.States == nil {
		return nil, errors.New("a joint state tracker is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("a logger is required")
	}
	if fixedMotionDuration < 0 {
		return nil, errors.Errorf("fixed motion duration must be non-negative, got %f", fixedMotionDuration)
	}

	gate := actuation.ExecutionGate{IgnoreNewCallsWhileExecuting: ignoreNewCallsWhileExecuting}

	return &MoveGroupCommand{
		jointNames:    jointNames,
		groupName:     groupName,
		dispatcher:    actuation.NewDispatcher(deps.Trajectory, gate, deps.Logger),
		tracker:       deps.States,
		planner:       deps.Planner,
		reset:         deps.Reset,
		skipPlanning:  skipPlanning,
		fixedDuration: actuation.DurationFromSeconds(fixedMotionDuration),
		logger:        deps.Logger,
	}, nil
}

// JointNames returns the ordered joint names of the group.
func (c *MoveGroupCommand) JointNames() []string {
	return c.jointNames
}

// States returns the joint feedback tracker the command observes.
func (c *MoveGroupCommand) States() *jointstate.Tracker {
	return c.tracker
}

// MoveToConfiguration dispatches a motion of the group to the target joint
// configuration. In skip-planning mode a fixed-duration trajectory is built
// and sent directly; otherwise the target is routed through planning. The
// call returns once the goal is submitted; completion is observed through
// WaitUntilExecuted.
func (c *MoveGroupCommand) MoveToConfiguration(targetPositions []float64) error {
	goal, err := c.buildGoal(targetPositions)
	if err != nil {
		return err
	}
	return c.DispatchGoal(goal, false)
}

// buildGoal constructs the goal for a target configuration per the
// configured build mode.
func (c *MoveGroupCommand) buildGoal(targetPositions []float64) (actuation.Goal, error) {
	if c.skipPlanning {
		goal, err := actuation.NewFixedTrajectoryGoal(c.jointNames, targetPositions, c.fixedDuration)
		if err != nil {
			return nil, err
		}
		return goal, nil
	}

	if c.planner != nil {
		trajectory, err := c.planner.PlanToConfiguration(c.groupName, c.jointNames, targetPositions)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to plan motion for group %s", c.groupName)
		}
		return &actuation.FixedTrajectoryGoal{Trajectory: trajectory}, nil
	}

	goal, err := actuation.NewPlannedGoal(c.groupName, c.jointNames, targetPositions)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// DispatchGoal submits a prebuilt goal through the admission gate. A gated
// drop is not an error; it is observable only through the unchanged
// execution state.
func (c *MoveGroupCommand) DispatchGoal(goal actuation.Goal, waitForAcceptance bool) error {
	_, err := c.dispatcher.Dispatch(goal, waitForAcceptance)
	return err
}

// State returns the current execution state.
func (c *MoveGroupCommand) State() actuation.ExecutionState {
	return c.dispatcher.State()
}

// WaitUntilExecuted blocks until the in-flight goal reaches a terminal
// state. With nothing in flight it returns the last known state immediately.
func (c *MoveGroupCommand) WaitUntilExecuted() actuation.ExecutionState {
	return c.dispatcher.WaitUntilExecuted()
}

// CancelCurrent requests cooperative cancellation of the in-flight goal and
// reports whether one was in flight to cancel.
func (c *MoveGroupCommand) CancelCurrent() bool {
	return c.dispatcher.CancelCurrent()
}

// ResetController assigns the joint configuration directly through the reset
// channel, bypassing trajectory execution. Only backends that support
// instantaneous joint reset, such as simulators, provide this channel.
func (c *MoveGroupCommand) ResetController(positions []float64, sync bool) error {
	if c.reset == nil {
		return errors.New("no reset channel configured")
	}
	if len(positions) != len(c.jointNames) {
		return errors.Errorf(
			"configuration mismatch: %d joint names but %d positions",
			len(c.jointNames), len(positions))
	}
	return c.reset.Reset(c.jointNames, positions, sync)
}
