package mqttbridge

import (
	"encoding/json"
	"time"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"

	"github.com/team-rocos/gripcmd/actuation"
	"github.com/team-rocos/gripcmd/jointstate"
)

// Wire payloads exchanged with the bridge. Outbound messages are marshalled
// with encoding/json; inbound payloads are picked apart with jsonparser so a
// malformed field fails in isolation.

type goalMessage struct {
	GoalID     string                     `json:"goal_id"`
	Planned    *actuation.PlannedGoal     `json:"planned,omitempty"`
	Trajectory *actuation.JointTrajectory `json:"trajectory,omitempty"`
}

type cancelMessage struct {
	GoalID string `json:"goal_id"`
}

type resetMessage struct {
	Token    string    `json:"token"`
	Name     []string  `json:"name"`
	Position []float64 `json:"position"`
}

const (
	statusAccepted = "accepted"
	statusRejected = "rejected"

	resultSucceeded = "succeeded"
	resultAborted   = "aborted"
	resultCanceled  = "canceled"
)

// encodeGoal wraps a goal with its ID for submission.
func encodeGoal(goalID string, goal actuation.Goal) ([]byte, error) {
	msg := goalMessage{GoalID: goalID}
	switch g := goal.(type) {
	case *actuation.PlannedGoal:
		msg.Planned = g
	case actuation.PlannedGoal:
		msg.Planned = &g
	case *actuation.FixedTrajectoryGoal:
		msg.Trajectory = &g.Trajectory
	case actuation.FixedTrajectoryGoal:
		msg.Trajectory = &g.Trajectory
	default:
		return nil, errors.Errorf("unsupported goal type %T", goal)
	}
	return json.Marshal(msg)
}

func encodeCancel(goalID string) ([]byte, error) {
	return json.Marshal(cancelMessage{GoalID: goalID})
}

func encodeReset(token string, jointNames []string, positions []float64) ([]byte, error) {
	return json.Marshal(resetMessage{Token: token, Name: jointNames, Position: positions})
}

// decodeStatus parses a goal acceptance/rejection notification.
func decodeStatus(payload []byte) (goalID, status, text string, err error) {
	if goalID, err = jsonparser.GetString(payload, "goal_id"); err != nil {
		return "", "", "", errors.Wrap(err, "status message missing goal_id")
	}
	if status, err = jsonparser.GetString(payload, "status"); err != nil {
		return "", "", "", errors.Wrap(err, "status message missing status")
	}
	if status != statusAccepted && status != statusRejected {
		return "", "", "", errors.Errorf("unknown goal status %q", status)
	}
	text, _ = jsonparser.GetString(payload, "text")
	return goalID, status, text, nil
}

// decodeResult parses a terminal completion notification.
func decodeResult(payload []byte) (goalID string, code actuation.ResultCode, text string, err error) {
	if goalID, err = jsonparser.GetString(payload, "goal_id"); err != nil {
		return "", 0, "", errors.Wrap(err, "result message missing goal_id")
	}
	raw, err := jsonparser.GetString(payload, "code")
	if err != nil {
		return "", 0, "", errors.Wrap(err, "result message missing code")
	}
	switch raw {
	case resultSucceeded:
		code = actuation.ResultSucceeded
	case resultAborted:
		code = actuation.ResultAborted
	case resultCanceled:
		code = actuation.ResultCanceled
	default:
		return "", 0, "", errors.Errorf("unknown result code %q", raw)
	}
	text, _ = jsonparser.GetString(payload, "text")
	return goalID, code, text, nil
}

// decodeResetAck parses a reset acknowledgment.
func decodeResetAck(payload []byte) (string, error) {
	token, err := jsonparser.GetString(payload, "token")
	if err != nil {
		return "", errors.Wrap(err, "reset ack missing token")
	}
	return token, nil
}

// decodeJointState parses a joint feedback message into a snapshot. The
// name and position arrays must be parallel.
func decodeJointState(payload []byte) (jointstate.Snapshot, error) {
	var snapshot jointstate.Snapshot
	var parseErr error

	floats := func(key string) []float64 {
		var values []float64
		jsonparser.ArrayEach(payload, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
			if err != nil || parseErr != nil {
				return
			}
			f, err := jsonparser.ParseFloat(value)
			if err != nil {
				parseErr = errors.Wrapf(err, "bad %s element", key)
				return
			}
			values = append(values, f)
		}, key)
		return values
	}

	jsonparser.ArrayEach(payload, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if err != nil || parseErr != nil {
			return
		}
		if dataType != jsonparser.String {
			parseErr = errors.Errorf("bad name element of type %s", dataType)
			return
		}
		snapshot.Names = append(snapshot.Names, string(value))
	}, "name")

	snapshot.Positions = floats("position")
	snapshot.Velocities = floats("velocity")
	snapshot.Efforts = floats("effort")

	if parseErr != nil {
		return jointstate.Snapshot{}, parseErr
	}
	if len(snapshot.Names) == 0 {
		return jointstate.Snapshot{}, errors.New("joint state message has no joint names")
	}
	if len(snapshot.Names) != len(snapshot.Positions) {
		return jointstate.Snapshot{}, errors.Errorf(
			"joint state mismatch: %d names but %d positions",
			len(snapshot.Names), len(snapshot.Positions))
	}

	if sec, err := jsonparser.GetInt(payload, "stamp", "sec"); err == nil {
		nsec, _ := jsonparser.GetInt(payload, "stamp", "nsec")
		snapshot.Stamp = time.Unix(sec, nsec)
	} else {
		snapshot.Stamp = time.Now()
	}

	return snapshot, nil
}
