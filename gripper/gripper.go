package gripper

import (
	"math"
	"sync"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"

	"github.com/team-rocos/gripcmd/actuation"
	"github.com/team-rocos/gripcmd/jointstate"
)

// GripperCommand is the public gripper interface: open, close, toggle and
// reset commands plus the open/closed classification derived from joint
// feedback. It contains a MoveGroupCommand for the actual goal construction
// and dispatch, exposing only the operations that make sense for a gripper.
type GripperCommand struct {
	move   *MoveGroupCommand
	config Config

	// openTolerances[i] is the maximum distance of joint i from its open
	// position for the gripper to still classify as open.
	openTolerances []float64

	// Goals for the open and closed configurations, precomputed at
	// construction when planning is skipped so identical trajectories are
	// not rebuilt on every call.
	openGoal  *actuation.FixedTrajectoryGoal
	closeGoal *actuation.FixedTrajectoryGoal

	// Joint indices into feedback snapshots, resolved once on first use.
	indexMutex sync.Mutex
	indices    []int

	logger *modular.ModuleLogger
}

// New validates the configuration and builds the gripper command interface
// on top of the given middleware collaborators.
func New(config Config, deps MoveGroupDeps) (*GripperCommand, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	move, err := NewMoveGroupCommand(
		config.GroupName,
		config.JointNames,
		config.IgnoreNewCallsWhileExecuting,
		config.SkipPlanning,
		config.FixedMotionDuration,
		deps,
	)
	if err != nil {
		return nil, err
	}

	g := &GripperCommand{
		move:           move,
		config:         config,
		openTolerances: config.OpenTolerances(),
		logger:         deps.Logger,
	}

	if config.SkipPlanning {
		duration := actuation.DurationFromSeconds(config.FixedMotionDuration)
		g.openGoal, err = actuation.NewFixedTrajectoryGoal(config.JointNames, config.OpenPositions, duration)
		if err != nil {
			return nil, err
		}
		g.closeGoal, err = actuation.NewFixedTrajectoryGoal(config.JointNames, config.ClosedPositions, duration)
		if err != nil {
			return nil, err
		}
	}

	return g, nil
}

// MoveGroup returns the contained generic executor, for callers that need to
// move the gripper joints to an arbitrary configuration.
func (g *GripperCommand) MoveGroup() *MoveGroupCommand {
	return g.move
}

// Open opens the gripper. With skipIfNoop set, nothing is dispatched when
// the gripper already classifies as open.
func (g *GripperCommand) Open(skipIfNoop bool) error {
	if skipIfNoop && g.IsOpen() {
		return nil
	}
	if g.openGoal != nil {
		return g.move.DispatchGoal(g.openGoal, false)
	}
	return g.move.MoveToConfiguration(g.config.OpenPositions)
}

// Close closes the gripper. With skipIfNoop set, nothing is dispatched when
// the gripper already classifies as closed.
func (g *GripperCommand) Close(skipIfNoop bool) error {
	if skipIfNoop && g.IsClosed() {
		return nil
	}
	if g.closeGoal != nil {
		return g.move.DispatchGoal(g.closeGoal, false)
	}
	return g.move.MoveToConfiguration(g.config.ClosedPositions)
}

// Toggle closes the gripper if it is open and opens it otherwise. The action
// is always dispatched.
func (g *GripperCommand) Toggle() error {
	if g.IsOpen() {
		return g.Close(false)
	}
	return g.Open(false)
}

// Do invokes the gripper with no arguments, which is identical to Toggle.
func (g *GripperCommand) Do() error {
	return g.Toggle()
}

// ResetOpen assigns the open configuration directly through the reset
// channel, for backends that allow instantaneous joint reset.
func (g *GripperCommand) ResetOpen(sync bool) error {
	return g.move.ResetController(g.config.OpenPositions, sync)
}

// ResetClosed assigns the closed configuration directly through the reset
// channel, for backends that allow instantaneous joint reset.
func (g *GripperCommand) ResetClosed(sync bool) error {
	return g.move.ResetController(g.config.ClosedPositions, sync)
}

// State returns the current execution state.
func (g *GripperCommand) State() actuation.ExecutionState {
	return g.move.State()
}

// WaitUntilExecuted blocks until the in-flight command reaches a terminal
// state and returns it.
func (g *GripperCommand) WaitUntilExecuted() actuation.ExecutionState {
	return g.move.WaitUntilExecuted()
}

// CancelCurrent requests cooperative cancellation of the in-flight command.
func (g *GripperCommand) CancelCurrent() bool {
	return g.move.CancelCurrent()
}

// IsOpen reports whether every gripper joint is within tolerance of its open
// position. Before any feedback has been received the gripper is assumed
// open; this keeps downstream logic from blocking on the first feedback
// message at the cost of a possibly wrong initial classification.
func (g *GripperCommand) IsOpen() bool {
	logger := *g.logger

	snapshot, ok := g.move.States().Latest()
	if !ok {
		return true
	}

	indices, err := g.jointIndices(snapshot)
	if err != nil {
		logger.Warnf("[GripperCommand] %v; assuming open", err)
		return true
	}

	for i, index := range indices {
		if math.Abs(snapshot.Positions[index]-g.config.OpenPositions[i]) > g.openTolerances[i] {
			return false
		}
	}
	return true
}

// IsClosed reports whether any gripper joint is outside the tolerance of its
// open position. The classification is strictly binary: a gripper in an
// intermediate position classifies as closed.
func (g *GripperCommand) IsClosed() bool {
	return !g.IsOpen()
}

// jointIndices resolves the position of each gripper joint in feedback
// snapshots. The mapping is computed from the first usable snapshot and
// cached for the lifetime of the interface, which matters for robots whose
// feedback covers many joints.
func (g *GripperCommand) jointIndices(snapshot jointstate.Snapshot) ([]int, error) {
	g.indexMutex.Lock()
	defer g.indexMutex.Unlock()

	if g.indices != nil {
		return g.indices, nil
	}

	indices := make([]int, 0, len(g.config.JointNames))
	for _, name := range g.config.JointNames {
		index, ok := snapshot.IndexOf(name)
		if !ok {
			return nil, errors.Errorf("joint %s not present in feedback", name)
		}
		indices = append(indices, index)
	}

	g.indices = indices
	return indices, nil
}
