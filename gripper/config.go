// Package gripper provides the high-level command interface for a gripper
// driven through a trajectory execution backend: open/close/toggle commands,
// execution tracking, and the open/closed classification derived from joint
// feedback.
package gripper

import (
	"math"
	"os"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

const (
	// DefaultToleranceScale is the fraction of the open/closed span used as
	// the per-joint tolerance band of the open classification.
	DefaultToleranceScale = 0.1

	// DefaultFixedMotionDuration is the duration, in seconds, of the fixed
	// trajectory sent when planning is skipped.
	DefaultFixedMotionDuration = 0.5

	// DefaultActionName is the routing identifier of the trajectory
	// execution action.
	DefaultActionName = "gripper_trajectory_controller/follow_joint_trajectory"

	// DefaultGroupName is the planning group identifier of the gripper
	// joints.
	DefaultGroupName = "gripper"
)

// Config describes a gripper joint group and the command interface policies.
type Config struct {
	// JointNames is the ordered set of gripper joints. OpenPositions and
	// ClosedPositions are the reference configurations, parallel to
	// JointNames.
	JointNames      []string
	OpenPositions   []float64
	ClosedPositions []float64

	// GroupName identifies the joint group towards the planning backend.
	GroupName string

	// ActionName is the routing identifier of the trajectory execution
	// service.
	ActionName string

	// ToleranceScale scales the open/closed span into the per-joint open
	// tolerance. Zero selects DefaultToleranceScale.
	ToleranceScale float64

	// IgnoreNewCallsWhileExecuting drops new commands while a previous one
	// is still in flight.
	IgnoreNewCallsWhileExecuting bool

	// SkipPlanning sends precomputed fixed-duration trajectories instead of
	// routing commands through motion planning.
	SkipPlanning bool

	// FixedMotionDuration is the duration in seconds of skip-planning
	// trajectories. Zero selects DefaultFixedMotionDuration.
	FixedMotionDuration float64
}

// Validate checks vector lengths and value ranges, filling in defaults for
// unset fields. Length mismatches are construction-time errors.
func (c *Config) Validate() error {
	if len(c.JointNames) == 0 {
		return errors.New("at least one gripper joint name is required")
	}
	if len(c.OpenPositions) != len(c.JointNames) || len(c.ClosedPositions) != len(c.JointNames) {
		return errors.Errorf(
			"configuration mismatch: %d joint names, %d open positions, %d closed positions",
			len(c.JointNames), len(c.OpenPositions), len(c.ClosedPositions))
	}
	if c.FixedMotionDuration < 0 {
		return errors.Errorf("fixed motion duration must be non-negative, got %f", c.FixedMotionDuration)
	}
	if c.ToleranceScale < 0 {
		return errors.Errorf("tolerance scale must be non-negative, got %f", c.ToleranceScale)
	}

	if c.GroupName == "" {
		c.GroupName = DefaultGroupName
	}
	if c.ActionName == "" {
		c.ActionName = DefaultActionName
	}
	if c.ToleranceScale == 0 {
		c.ToleranceScale = DefaultToleranceScale
	}
	if c.FixedMotionDuration == 0 {
		c.FixedMotionDuration = DefaultFixedMotionDuration
	}

	return nil
}

// OpenTolerances derives the per-joint tolerance band from the open/closed
// span: scale * |open[i] - closed[i]|.
func (c *Config) OpenTolerances() []float64 {
	scale := c.ToleranceScale
	if scale == 0 {
		scale = DefaultToleranceScale
	}

	tolerances := make([]float64, len(c.JointNames))
	for i := range c.JointNames {
		tolerances[i] = scale * math.Abs(c.OpenPositions[i]-c.ClosedPositions[i])
	}
	return tolerances
}

// ParseConfig reads a Config from its JSON representation.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	var parseErr error

	collect := func(keys ...string) ([]string, []float64) {
		var names []string
		var values []float64
		jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			if err != nil {
				parseErr = err
				return
			}
			switch dataType {
			case jsonparser.String:
				names = append(names, string(value))
			case jsonparser.Number:
				f, err := jsonparser.ParseFloat(value)
				if err != nil {
					parseErr = err
					return
				}
				values = append(values, f)
			default:
				parseErr = errors.Errorf("unexpected %s element in %v", dataType, keys)
			}
		}, keys...)
		return names, values
	}

	cfg.JointNames, _ = collect("joint_names")
	_, cfg.OpenPositions = collect("open_positions")
	_, cfg.ClosedPositions = collect("closed_positions")
	if parseErr != nil {
		return Config{}, errors.Wrap(parseErr, "failed to parse gripper config")
	}

	if v, err := jsonparser.GetString(data, "group_name"); err == nil {
		cfg.GroupName = v
	}
	if v, err := jsonparser.GetString(data, "action_name"); err == nil {
		cfg.ActionName = v
	}
	if v, err := jsonparser.GetFloat(data, "tolerance_scale"); err == nil {
		cfg.ToleranceScale = v
	}
	if v, err := jsonparser.GetBoolean(data, "ignore_new_calls_while_executing"); err == nil {
		cfg.IgnoreNewCallsWhileExecuting = v
	}
	if v, err := jsonparser.GetBoolean(data, "skip_planning"); err == nil {
		cfg.SkipPlanning = v
	}
	if v, err := jsonparser.GetFloat(data, "fixed_motion_duration"); err == nil {
		cfg.FixedMotionDuration = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a JSON configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read gripper config %s", path)
	}
	return ParseConfig(data)
}
