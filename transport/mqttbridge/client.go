// Package mqttbridge adapts the actuation middleware boundary to an MQTT
// broker: goals, cancellations and joint resets go out as JSON payloads on
// command topics, while goal status, results, reset acknowledgments and
// joint feedback stream back in on the matching inbound topics.
package mqttbridge

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"

	"github.com/team-rocos/gripcmd/actuation"
	"github.com/team-rocos/gripcmd/jointstate"
)

const defaultAckTimeout = 5 * time.Second

// maxTrackedGoals bounds the handler registry. A backend that never reports
// a terminal event for a goal would otherwise leak its handler forever; once
// the bound is hit the oldest untracked-terminal goal is evicted.
const maxTrackedGoals = 16

// Options configures the bridge connection and topic routing.
type Options struct {
	// Broker is the MQTT broker URL, e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string

	// TopicPrefix roots every topic of this robot, e.g. "robots/pepper".
	TopicPrefix string

	// ActionName is the trajectory action routing identifier appended to the
	// prefix for goal traffic.
	ActionName string

	// AckTimeout bounds waits on broker and backend acknowledgments. Zero
	// selects a 5 second default.
	AckTimeout time.Duration

	// States receives decoded joint feedback snapshots.
	States *jointstate.Tracker

	Logger *modular.ModuleLogger
}

// Client wraps the PAHO MQTT client and implements the actuation transport
// interfaces on top of it.
type Client struct {
	client     mqtt.Client
	logger     *modular.ModuleLogger
	states     *jointstate.Tracker
	ackTimeout time.Duration

	goalTopic     string
	cancelTopic   string
	statusTopic   string
	resultTopic   string
	jointTopic    string
	resetTopic    string
	resetAckTopic string

	goalIDGen *goalIDGenerator

	handlersMutex sync.RWMutex
	handlers      map[string]actuation.GoalEventHandler
	handlerOrder  []string

	acksMutex sync.Mutex
	acks      map[string]chan struct{}
}

var (
	_ actuation.TrajectoryClient = (*Client)(nil)
	_ actuation.ResetChannel     = (*Client)(nil)
)

// NewClient connects to the broker and subscribes to the inbound topics.
func NewClient(opts Options) (*Client, error) {
	if opts.Broker == "" {
		return nil, errors.New("a broker URL is required")
	}
	if opts.TopicPrefix == "" {
		return nil, errors.New("a topic prefix is required")
	}
	if opts.ActionName == "" {
		return nil, errors.New("an action name is required")
	}
	if opts.States == nil {
		return nil, errors.New("a joint state tracker is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("a logger is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "gripcmd"
	}
	if opts.AckTimeout == 0 {
		opts.AckTimeout = defaultAckTimeout
	}

	actionRoot := fmt.Sprintf("%s/%s", opts.TopicPrefix, opts.ActionName)
	c := &Client{
		logger:        opts.Logger,
		states:        opts.States,
		ackTimeout:    opts.AckTimeout,
		goalTopic:     actionRoot + "/goal",
		cancelTopic:   actionRoot + "/cancel",
		statusTopic:   actionRoot + "/status",
		resultTopic:   actionRoot + "/result",
		jointTopic:    opts.TopicPrefix + "/joint_states",
		resetTopic:    opts.TopicPrefix + "/joint_states/reset",
		resetAckTopic: opts.TopicPrefix + "/joint_states/reset/ack",
		goalIDGen:     newGoalIDGenerator(opts.ClientID),
		handlers:      make(map[string]actuation.GoalEventHandler),
		acks:          make(map[string]chan struct{}),
	}

	pahoOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(pahoOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "failed to connect to MQTT broker")
	}

	return c, nil
}

// Disconnect gracefully disconnects from the broker.
func (c *Client) Disconnect() {
	logger := *c.logger
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		logger.Info("[MQTTBridge] Disconnected from broker")
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	logger := *c.logger
	logger.Info("[MQTTBridge] Connected to broker, subscribing")
	c.subscribe(c.statusTopic, c.handleStatus)
	c.subscribe(c.resultTopic, c.handleResult)
	c.subscribe(c.jointTopic, c.handleJointState)
	c.subscribe(c.resetAckTopic, c.handleResetAck)
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	logger := *c.logger
	logger.Errorf("[MQTTBridge] Connection lost, reconnecting: %v", err)
}

func (c *Client) subscribe(topic string, handler mqtt.MessageHandler) {
	logger := *c.logger
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		logger.Errorf("[MQTTBridge] Failed to subscribe to %s: %v", topic, token.Error())
	} else {
		logger.Debugf("[MQTTBridge] Subscribed to %s", topic)
	}
}

func (c *Client) publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return errors.New("MQTT client is not connected")
	}
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(c.ackTimeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	return errors.Wrapf(token.Error(), "failed to publish to %s", topic)
}

// SendGoal publishes the goal and routes its status and result messages to
// the handler until a terminal event arrives.
func (c *Client) SendGoal(goal actuation.Goal, events actuation.GoalEventHandler) (actuation.GoalHandle, error) {
	goalID := c.goalIDGen.generateID()
	payload, err := encodeGoal(goalID, goal)
	if err != nil {
		return nil, err
	}

	c.registerHandler(goalID, events)

	if err := c.publish(c.goalTopic, payload); err != nil {
		c.dropHandler(goalID)
		return nil, err
	}

	return &goalHandle{client: c, goalID: goalID}, nil
}

// Reset publishes a direct joint assignment. When sync is set the call
// blocks until the backend acknowledges it, bounded by the ack timeout.
func (c *Client) Reset(jointNames []string, positions []float64, sync bool) error {
	token := c.goalIDGen.generateID()
	payload, err := encodeReset(token, jointNames, positions)
	if err != nil {
		return err
	}

	var ackChan chan struct{}
	if sync {
		ackChan = make(chan struct{}, 1)
		c.acksMutex.Lock()
		c.acks[token] = ackChan
		c.acksMutex.Unlock()
		defer func() {
			c.acksMutex.Lock()
			delete(c.acks, token)
			c.acksMutex.Unlock()
		}()
	}

	if err := c.publish(c.resetTopic, payload); err != nil {
		return err
	}
	if !sync {
		return nil
	}

	select {
	case <-ackChan:
		return nil
	case <-time.After(c.ackTimeout):
		return errors.Errorf("timed out waiting for reset acknowledgment %s", token)
	}
}

func (c *Client) handleStatus(client mqtt.Client, msg mqtt.Message) {
	logger := *c.logger
	goalID, status, text, err := decodeStatus(msg.Payload())
	if err != nil {
		logger.Errorf("[MQTTBridge] Bad status message on %s: %v", msg.Topic(), err)
		return
	}

	handler := c.lookupHandler(goalID)
	if handler == nil {
		logger.Debugf("[MQTTBridge] Status for unknown goal %s", goalID)
		return
	}

	switch status {
	case statusAccepted:
		handler.GoalAccepted()
	case statusRejected:
		c.dropHandler(goalID)
		handler.GoalRejected(text)
	}
}

func (c *Client) handleResult(client mqtt.Client, msg mqtt.Message) {
	logger := *c.logger
	goalID, code, text, err := decodeResult(msg.Payload())
	if err != nil {
		logger.Errorf("[MQTTBridge] Bad result message on %s: %v", msg.Topic(), err)
		return
	}

	handler := c.lookupHandler(goalID)
	if handler == nil {
		logger.Debugf("[MQTTBridge] Result for unknown goal %s", goalID)
		return
	}

	c.dropHandler(goalID)
	handler.GoalFinished(code, text)
}

func (c *Client) handleJointState(client mqtt.Client, msg mqtt.Message) {
	logger := *c.logger
	snapshot, err := decodeJointState(msg.Payload())
	if err != nil {
		logger.Errorf("[MQTTBridge] Bad joint state message on %s: %v", msg.Topic(), err)
		return
	}
	c.states.Update(snapshot)
}

func (c *Client) handleResetAck(client mqtt.Client, msg mqtt.Message) {
	logger := *c.logger
	token, err := decodeResetAck(msg.Payload())
	if err != nil {
		logger.Errorf("[MQTTBridge] Bad reset ack on %s: %v", msg.Topic(), err)
		return
	}

	c.acksMutex.Lock()
	ackChan, ok := c.acks[token]
	c.acksMutex.Unlock()
	if !ok {
		return
	}

	select {
	case ackChan <- struct{}{}:
	default:
	}
}

func (c *Client) lookupHandler(goalID string) actuation.GoalEventHandler {
	c.handlersMutex.RLock()
	defer c.handlersMutex.RUnlock()

	return c.handlers[goalID]
}

func (c *Client) registerHandler(goalID string, events actuation.GoalEventHandler) {
	logger := *c.logger

	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()

	// handlerOrder can hold IDs whose handler already terminated; those
	// entries are skipped here instead of being compacted on every drop.
	for len(c.handlers) >= maxTrackedGoals && len(c.handlerOrder) > 0 {
		oldest := c.handlerOrder[0]
		c.handlerOrder = c.handlerOrder[1:]
		if _, ok := c.handlers[oldest]; ok {
			delete(c.handlers, oldest)
			logger.Warnf("[MQTTBridge] Evicting handler for goal %s with no terminal event", oldest)
		}
	}

	c.handlers[goalID] = events
	c.handlerOrder = append(c.handlerOrder, goalID)
}

func (c *Client) dropHandler(goalID string) {
	c.handlersMutex.Lock()
	defer c.handlersMutex.Unlock()

	delete(c.handlers, goalID)
}

// goalHandle addresses one submitted goal for cancellation.
type goalHandle struct {
	client *Client
	goalID string
}

func (h *goalHandle) ID() string {
	return h.goalID
}

func (h *goalHandle) Cancel() error {
	payload, err := encodeCancel(h.goalID)
	if err != nil {
		return err
	}
	return h.client.publish(h.client.cancelTopic, payload)
}
