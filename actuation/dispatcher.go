package actuation

import (
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
)

// Dispatcher sends goals to a TrajectoryClient and tracks the lifecycle of
// the most recent one. Public methods are called from the caller's goroutine
// and may block it; lifecycle callbacks arrive on the transport's worker
// goroutines and only flip state under the mutex. At most one goal is
// tracked at a time: a newly admitted dispatch overwrites tracking of the
// previous goal without cancelling it.
type Dispatcher struct {
	client TrajectoryClient
	gate   ExecutionGate
	logger *modular.ModuleLogger

	mutex      sync.RWMutex
	state      ExecutionState
	lastResult ExecutionState
	handle     GoalHandle
	seq        uint64
	doneChan   chan struct{}
}

func NewDispatcher(client TrajectoryClient, gate ExecutionGate, logger *modular.ModuleLogger) *Dispatcher {
	return &Dispatcher{
		client:     client,
		gate:       gate,
		logger:     logger,
		state:      Idle,
		lastResult: Idle,
		doneChan:   make(chan struct{}, 10),
	}
}

// State returns the current execution state.
func (d *Dispatcher) State() ExecutionState {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.state
}

// LastResult returns the terminal state reached by the most recently
// completed goal, or Idle when no goal has finished yet. Unlike State it is
// not reset by a new dispatch, so it stays readable while a later goal is
// still in flight.
func (d *Dispatcher) LastResult() ExecutionState {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.lastResult
}

// Dispatch submits the goal asynchronously. It returns (false, nil) when the
// admission gate drops the request, leaving the in-flight goal and the
// execution state untouched. When waitForAcceptance is true the call blocks
// until the backend acknowledges the goal as accepted or rejected.
func (d *Dispatcher) Dispatch(goal Goal, waitForAcceptance bool) (bool, error) {
	logger := *d.logger

	d.mutex.Lock()
	if !d.gate.Admit(d.state) {
		d.mutex.Unlock()
		logger.Debugf("[Dispatcher] Ignoring new goal while in state %s", d.State())
		return false, nil
	}

	d.seq++
	seq := d.seq
	d.setStateLocked(Dispatching)
	d.handle = nil
	d.mutex.Unlock()

	handle, err := d.client.SendGoal(goal, &goalTracker{dispatcher: d, seq: seq})
	if err != nil {
		d.mutex.Lock()
		if d.seq == seq {
			d.setStateLocked(Rejected)
			d.signalLocked()
		}
		d.mutex.Unlock()
		return false, errors.Wrap(err, "failed to send goal")
	}

	d.mutex.Lock()
	if d.seq == seq {
		d.handle = handle
	}
	d.mutex.Unlock()

	if waitForAcceptance {
		d.waitWhile(func(s ExecutionState) bool { return s == Dispatching })
	}

	return true, nil
}

// WaitUntilExecuted blocks until the tracked goal reaches a terminal state
// and returns it. With no dispatch outstanding it returns immediately with
// the last known state; calling it repeatedly without an intervening
// dispatch keeps returning the same value.
func (d *Dispatcher) WaitUntilExecuted() ExecutionState {
	d.waitWhile(func(s ExecutionState) bool { return s.InFlight() })
	return d.State()
}

// CancelCurrent requests cooperative cancellation of the in-flight goal.
// It reports whether a cancellation was actually requested; completion is
// still observed asynchronously through WaitUntilExecuted.
func (d *Dispatcher) CancelCurrent() bool {
	logger := *d.logger

	d.mutex.RLock()
	handle := d.handle
	inFlight := d.state.InFlight()
	d.mutex.RUnlock()

	if !inFlight || handle == nil {
		return false
	}

	if err := handle.Cancel(); err != nil {
		logger.Errorf("[Dispatcher] Failed to cancel goal %s: %v", handle.ID(), err)
		return false
	}
	return true
}

// waitWhile blocks the calling goroutine for as long as cond holds. Wakeups
// ride on doneChan signals from the transport callbacks, with a bounded
// polling interval as a fallback.
func (d *Dispatcher) waitWhile(cond func(ExecutionState) bool) {
	for cond(d.State()) {
		select {
		case <-d.doneChan:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) setStateLocked(state ExecutionState) {
	logger := *d.logger
	logger.Debugf("[Dispatcher] Transitioning from %s to %s", d.state, state)
	d.state = state
	if state.Terminal() {
		d.lastResult = state
	}
}

func (d *Dispatcher) signalLocked() {
	logger := *d.logger
	select {
	case d.doneChan <- struct{}{}:
	default:
		logger.Errorf("[Dispatcher] Error sending state notification. Channel full.")
	}
}

func (d *Dispatcher) goalAccepted(seq uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if seq != d.seq {
		return
	}
	if d.state != Dispatching {
		logger := *d.logger
		logger.Errorf("[Dispatcher] Received acceptance in state %s", d.state)
		return
	}

	d.setStateLocked(Executing)
	d.signalLocked()
}

func (d *Dispatcher) goalRejected(seq uint64, reason string) {
	logger := *d.logger

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if seq != d.seq {
		return
	}
	if d.state != Dispatching {
		logger.Errorf("[Dispatcher] Received rejection in state %s", d.state)
		return
	}

	logger.Warnf("[Dispatcher] Goal rejected: %s", reason)
	d.setStateLocked(Rejected)
	d.signalLocked()
}

func (d *Dispatcher) goalFinished(seq uint64, code ResultCode, text string) {
	logger := *d.logger

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if seq != d.seq {
		logger.Debugf("[Dispatcher] Ignoring result %s for superseded goal", code)
		return
	}
	if d.state.Terminal() {
		logger.Errorf("[Dispatcher] Received result %s twice", code)
		return
	}

	if len(text) > 0 {
		logger.Debugf("[Dispatcher] Goal finished with %s: %s", code, text)
	}
	d.setStateLocked(code.state())
	d.handle = nil
	d.signalLocked()
}

// goalTracker routes lifecycle events of one sent goal back to the
// dispatcher. The sequence number fences off callbacks from goals whose
// tracking has been overwritten by a later dispatch.
type goalTracker struct {
	dispatcher *Dispatcher
	seq        uint64
}

func (t *goalTracker) GoalAccepted() {
	t.dispatcher.goalAccepted(t.seq)
}

func (t *goalTracker) GoalRejected(reason string) {
	t.dispatcher.goalRejected(t.seq, reason)
}

func (t *goalTracker) GoalFinished(code ResultCode, text string) {
	t.dispatcher.goalFinished(t.seq, code, text)
}
