package actuation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//
// Fake trajectory client
//

type sentGoal struct {
	goal   Goal
	events GoalEventHandler
}

type fakeTrajectoryClient struct {
	mutex   sync.Mutex
	sent    []sentGoal
	sendErr error
	cancels []string
}

type fakeGoalHandle struct {
	client *fakeTrajectoryClient
	id     string
}

func (h *fakeGoalHandle) ID() string {
	return h.id
}

func (h *fakeGoalHandle) Cancel() error {
	h.client.mutex.Lock()
	defer h.client.mutex.Unlock()

	h.client.cancels = append(h.client.cancels, h.id)
	return nil
}

func (f *fakeTrajectoryClient) SendGoal(goal Goal, events GoalEventHandler) (GoalHandle, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}

	f.sent = append(f.sent, sentGoal{goal: goal, events: events})
	return &fakeGoalHandle{client: f, id: fmt.Sprintf("goal-%d", len(f.sent))}, nil
}

func (f *fakeTrajectoryClient) sendCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.sent)
}

func (f *fakeTrajectoryClient) eventsFor(i int) GoalEventHandler {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.sent[i].events
}

func (f *fakeTrajectoryClient) cancelCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.cancels)
}

func testLogger() *modular.ModuleLogger {
	rootLogger := modular.NewRootLogger(logrus.New())
	log := rootLogger.GetModuleLogger()
	return &log
}

func testGoal(t *testing.T) Goal {
	t.Helper()
	goal, err := NewFixedTrajectoryGoal([]string{"j1"}, []float64{0.5}, DurationFromSeconds(0.5))
	if err != nil {
		t.Fatal(err)
	}
	return goal
}

//
// Tests
//

func TestDispatchLifecycle(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	if d.State() != Idle {
		t.Fatalf("initial state %s, want IDLE", d.State())
	}

	admitted, err := d.Dispatch(testGoal(t), false)
	if err != nil || !admitted {
		t.Fatalf("dispatch: admitted=%v err=%v", admitted, err)
	}
	if d.State() != Dispatching {
		t.Fatalf("state %s after dispatch, want DISPATCHING", d.State())
	}

	client.eventsFor(0).GoalAccepted()
	if d.State() != Executing {
		t.Fatalf("state %s after acceptance, want EXECUTING", d.State())
	}

	client.eventsFor(0).GoalFinished(ResultSucceeded, "")
	if got := d.WaitUntilExecuted(); got != Succeeded {
		t.Fatalf("terminal state %s, want SUCCEEDED", got)
	}

	// Idempotent with no intervening dispatch.
	if got := d.WaitUntilExecuted(); got != Succeeded {
		t.Fatalf("repeated wait returned %s, want SUCCEEDED", got)
	}
}

func TestDispatchRejectedShortCircuits(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}

	client.eventsFor(0).GoalRejected("busy")
	if got := d.WaitUntilExecuted(); got != Rejected {
		t.Fatalf("terminal state %s, want REJECTED", got)
	}
}

func TestDispatchWaitsForAcceptance(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	go func() {
		for client.sendCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		client.eventsFor(0).GoalAccepted()
	}()

	if _, err := d.Dispatch(testGoal(t), true); err != nil {
		t.Fatal(err)
	}
	if d.State() != Executing {
		t.Fatalf("state %s after accepted dispatch, want EXECUTING", d.State())
	}
}

func TestAdmissionDropWhileExecuting(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{IgnoreNewCallsWhileExecuting: true}, testLogger())

	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}
	client.eventsFor(0).GoalAccepted()

	admitted, err := d.Dispatch(testGoal(t), false)
	if err != nil {
		t.Fatal(err)
	}
	if admitted {
		t.Error("dispatch while executing should have been dropped")
	}
	if client.sendCount() != 1 {
		t.Errorf("%d goals sent, want 1", client.sendCount())
	}
	if d.State() != Executing {
		t.Errorf("state %s after dropped dispatch, want EXECUTING", d.State())
	}
}

func TestSupersededGoalEventsIgnored(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}

	// Events from the overwritten first goal must not disturb tracking of
	// the second.
	client.eventsFor(0).GoalAccepted()
	client.eventsFor(0).GoalFinished(ResultAborted, "preempted")
	if d.State() != Dispatching {
		t.Fatalf("state %s after stale events, want DISPATCHING", d.State())
	}

	client.eventsFor(1).GoalAccepted()
	client.eventsFor(1).GoalFinished(ResultSucceeded, "")
	if got := d.WaitUntilExecuted(); got != Succeeded {
		t.Fatalf("terminal state %s, want SUCCEEDED", got)
	}
}

func TestCancelCurrent(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	if d.CancelCurrent() {
		t.Error("cancel with no goal in flight should be a no-op")
	}

	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}
	client.eventsFor(0).GoalAccepted()

	if !d.CancelCurrent() {
		t.Error("cancel of an in-flight goal should be requested")
	}
	if client.cancelCount() != 1 {
		t.Errorf("%d cancellations recorded, want 1", client.cancelCount())
	}

	// Cancellation is cooperative: completion arrives asynchronously.
	client.eventsFor(0).GoalFinished(ResultCanceled, "")
	if got := d.WaitUntilExecuted(); got != Canceled {
		t.Fatalf("terminal state %s, want CANCELED", got)
	}

	if d.CancelCurrent() {
		t.Error("cancel after completion should be a no-op")
	}
}

func TestLastResultSurvivesRedispatch(t *testing.T) {
	client := &fakeTrajectoryClient{}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	if d.LastResult() != Idle {
		t.Fatalf("initial last result %s, want IDLE", d.LastResult())
	}

	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}
	client.eventsFor(0).GoalAccepted()
	client.eventsFor(0).GoalFinished(ResultAborted, "collision")

	if got := d.LastResult(); got != Aborted {
		t.Fatalf("last result %s, want ABORTED", got)
	}

	// A new dispatch resets State but keeps the previous terminal readable.
	if _, err := d.Dispatch(testGoal(t), false); err != nil {
		t.Fatal(err)
	}
	client.eventsFor(1).GoalAccepted()
	if d.State() != Executing {
		t.Fatalf("state %s while executing, want EXECUTING", d.State())
	}
	if got := d.LastResult(); got != Aborted {
		t.Fatalf("last result %s during redispatch, want ABORTED", got)
	}

	client.eventsFor(1).GoalFinished(ResultSucceeded, "")
	d.WaitUntilExecuted()
	if got := d.LastResult(); got != Succeeded {
		t.Fatalf("last result %s after success, want SUCCEEDED", got)
	}
}

func TestSendGoalFailureRejects(t *testing.T) {
	client := &fakeTrajectoryClient{sendErr: errors.New("broker down")}
	d := NewDispatcher(client, ExecutionGate{}, testLogger())

	admitted, err := d.Dispatch(testGoal(t), false)
	if err == nil {
		t.Fatal("expected submission error")
	}
	if admitted {
		t.Error("failed submission should not report an admitted dispatch")
	}
	if got := d.WaitUntilExecuted(); got != Rejected {
		t.Fatalf("terminal state %s, want REJECTED", got)
	}
}
