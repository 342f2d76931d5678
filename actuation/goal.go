package actuation

import (
	"math"

	"github.com/pkg/errors"
)

// Duration is a wire duration split into whole seconds and a nanosecond
// remainder, matching the trajectory protocol's time encoding. Fractional
// precision beyond nanosecond resolution is lost on conversion.
type Duration struct {
	Sec  int32 `json:"sec"`
	Nsec int32 `json:"nsec"`
}

// DurationFromSeconds splits a non-negative duration in seconds into its
// whole-second and nanosecond-remainder components.
func DurationFromSeconds(seconds float64) Duration {
	sec := math.Floor(seconds)
	nsec := int32(math.Round(1e9 * (seconds - sec)))
	// Rounding the fraction can land exactly on a full second.
	if nsec >= 1e9 {
		sec++
		nsec -= 1e9
	}
	return Duration{
		Sec:  int32(sec),
		Nsec: nsec,
	}
}

// Seconds returns the duration as a floating-point number of seconds.
func (d Duration) Seconds() float64 {
	return float64(d.Sec) + float64(d.Nsec)/1e9
}

// TrajectoryPoint is a single waypoint of a joint trajectory.
type TrajectoryPoint struct {
	Positions     []float64 `json:"positions"`
	Velocities    []float64 `json:"velocities,omitempty"`
	TimeFromStart Duration  `json:"time_from_start"`
}

// JointTrajectory is an ordered set of waypoints over a fixed set of joints.
type JointTrajectory struct {
	JointNames []string          `json:"joint_names"`
	Points     []TrajectoryPoint `json:"points"`
}

// Goal is a single requested unit of trajectory execution. It is either a
// PlannedGoal, resolved by a motion planner, or a FixedTrajectoryGoal sent
// for execution as-is.
type Goal interface {
	goal()
}

// PlannedGoal asks the backend to plan a motion of the named joint group to
// the target configuration and execute it.
type PlannedGoal struct {
	GroupName       string    `json:"group_name"`
	JointNames      []string  `json:"joint_names"`
	TargetPositions []float64 `json:"target_positions"`
}

func (PlannedGoal) goal() {}

// FixedTrajectoryGoal carries a precomputed trajectory that bypasses motion
// planning entirely.
type FixedTrajectoryGoal struct {
	Trajectory JointTrajectory `json:"trajectory"`
}

func (FixedTrajectoryGoal) goal() {}

// NewPlannedGoal wraps a target joint configuration and its group identifier.
// The lengths of jointNames and targetPositions must match.
func NewPlannedGoal(groupName string, jointNames []string, targetPositions []float64) (*PlannedGoal, error) {
	if len(jointNames) != len(targetPositions) {
		return nil, errors.Errorf(
			"configuration mismatch: %d joint names but %d target positions",
			len(jointNames), len(targetPositions))
	}
	return &PlannedGoal{
		GroupName:       groupName,
		JointNames:      jointNames,
		TargetPositions: targetPositions,
	}, nil
}

// NewFixedTrajectoryGoal builds a single-waypoint trajectory that reaches
// targetPositions at motionDuration seconds from dispatch.
func NewFixedTrajectoryGoal(jointNames []string, targetPositions []float64, motionDuration Duration) (*FixedTrajectoryGoal, error) {
	if len(jointNames) != len(targetPositions) {
		return nil, errors.Errorf(
			"configuration mismatch: %d joint names but %d target positions",
			len(jointNames), len(targetPositions))
	}
	return &FixedTrajectoryGoal{
		Trajectory: JointTrajectory{
			JointNames: jointNames,
			Points: []TrajectoryPoint{
				{
					Positions:     targetPositions,
					TimeFromStart: motionDuration,
				},
			},
		},
	}, nil
}
