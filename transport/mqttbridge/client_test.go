package mqttbridge

import (
	"fmt"
	"testing"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-rocos/gripcmd/actuation"
	"github.com/team-rocos/gripcmd/jointstate"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingHandler struct {
	accepted int
	rejected []string
	finished []actuation.ResultCode
}

func (h *recordingHandler) GoalAccepted() {
	h.accepted++
}

func (h *recordingHandler) GoalRejected(reason string) {
	h.rejected = append(h.rejected, reason)
}

func (h *recordingHandler) GoalFinished(code actuation.ResultCode, text string) {
	h.finished = append(h.finished, code)
}

func testLogger() *modular.ModuleLogger {
	rootLogger := modular.NewRootLogger(logrus.New())
	log := rootLogger.GetModuleLogger()
	return &log
}

func newTestClient() *Client {
	return &Client{
		logger:   testLogger(),
		states:   jointstate.NewTracker(),
		handlers: make(map[string]actuation.GoalEventHandler),
		acks:     make(map[string]chan struct{}),
	}
}

func TestStatusRouting(t *testing.T) {
	c := newTestClient()
	handler := &recordingHandler{}
	c.handlers["g1"] = handler

	c.handleStatus(nil, fakeMessage{payload: []byte(`{"goal_id":"g1","status":"accepted"}`)})
	assert.Equal(t, 1, handler.accepted)

	// A rejection is terminal: the handler is dropped afterwards.
	c.handleStatus(nil, fakeMessage{payload: []byte(`{"goal_id":"g1","status":"rejected","text":"busy"}`)})
	require.Len(t, handler.rejected, 1)
	assert.Equal(t, "busy", handler.rejected[0])
	assert.Nil(t, c.lookupHandler("g1"))

	// Status for an unknown goal is ignored.
	c.handleStatus(nil, fakeMessage{payload: []byte(`{"goal_id":"g9","status":"accepted"}`)})
}

func TestResultRouting(t *testing.T) {
	c := newTestClient()
	handler := &recordingHandler{}
	c.handlers["g1"] = handler

	c.handleResult(nil, fakeMessage{payload: []byte(`{"goal_id":"g1","code":"succeeded"}`)})
	require.Len(t, handler.finished, 1)
	assert.Equal(t, actuation.ResultSucceeded, handler.finished[0])
	assert.Nil(t, c.lookupHandler("g1"))

	// Late duplicates after the terminal event are dropped.
	c.handleResult(nil, fakeMessage{payload: []byte(`{"goal_id":"g1","code":"succeeded"}`)})
	assert.Len(t, handler.finished, 1)
}

func TestHandlerRegistryBounded(t *testing.T) {
	c := newTestClient()

	for i := 0; i < maxTrackedGoals; i++ {
		c.registerHandler(fmt.Sprintf("g%d", i), &recordingHandler{})
	}
	require.Len(t, c.handlers, maxTrackedGoals)

	// Registering past the bound evicts the oldest goal without a terminal
	// event; the rest stay routable.
	c.registerHandler("overflow", &recordingHandler{})
	assert.Len(t, c.handlers, maxTrackedGoals)
	assert.Nil(t, c.lookupHandler("g0"))
	assert.NotNil(t, c.lookupHandler("g1"))
	assert.NotNil(t, c.lookupHandler("overflow"))

	// Goals that terminated normally are skipped over during eviction.
	c.handleResult(nil, fakeMessage{payload: []byte(`{"goal_id":"g1","code":"succeeded"}`)})
	c.handleResult(nil, fakeMessage{payload: []byte(`{"goal_id":"g2","code":"aborted"}`)})
	c.registerHandler("fill1", &recordingHandler{})
	c.registerHandler("fill2", &recordingHandler{})
	c.registerHandler("after-terminals", &recordingHandler{})
	assert.Nil(t, c.lookupHandler("g3"))
	assert.NotNil(t, c.lookupHandler("g4"))
	assert.NotNil(t, c.lookupHandler("after-terminals"))
}

func TestJointStateFeedsTracker(t *testing.T) {
	c := newTestClient()

	c.handleJointState(nil, fakeMessage{payload: []byte(`{"name":["j1"],"position":[0.25]}`)})

	snapshot, ok := c.states.Latest()
	require.True(t, ok)
	assert.Equal(t, []float64{0.25}, snapshot.Positions)

	// Malformed feedback leaves the last good snapshot in place.
	c.handleJointState(nil, fakeMessage{payload: []byte(`{"name":["j1"]}`)})
	snapshot, ok = c.states.Latest()
	require.True(t, ok)
	assert.Equal(t, []float64{0.25}, snapshot.Positions)
}

func TestResetAckSignalsWaiter(t *testing.T) {
	c := newTestClient()
	ackChan := make(chan struct{}, 1)
	c.acks["tok-1"] = ackChan

	c.handleResetAck(nil, fakeMessage{payload: []byte(`{"token":"tok-1"}`)})

	select {
	case <-ackChan:
	default:
		t.Fatal("expected the ack channel to be signalled")
	}

	// Unknown tokens are ignored.
	c.handleResetAck(nil, fakeMessage{payload: []byte(`{"token":"tok-2"}`)})
}
