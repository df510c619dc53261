package mqttsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Service is a lifecycle managed MQTT client. It keeps a set of topic
// subscriptions in sync with the broker across connects, disconnects
// and reconnects.
type Service interface {
	Start(ctx context.Context) bool
	Stop()
	Close() error
	IsConnected() bool
	IsStarted() bool
	State() State
	ConnectedServerURI() (string, bool)
	Subscribe(ctx context.Context, topicFilter string) error
	SubscribeQoS(ctx context.Context, topicFilter string, qos QoS) error
	Unsubscribe(ctx context.Context, topicFilter string) error
	Subscriptions() []TopicSubscription
	Publish(ctx context.Context, req PublishRequest) error
	SetObserver(observer Observer)
	SetMessageHandler(handler MessageHandler) error
	ClientID() string
	Role() ConnectionRole
}

// State is the lifecycle state of a client
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Client drives a Transport, replays subscriptions on every connect and
// reconnects according to the native transport reconnect or a ReconnectPolicy.
//
// Start, Stop, Close, Subscribe, Unsubscribe and the connection callbacks are
// serialized by a fair lock. Events are delivered to the observer while that
// lock (or the publish lock) is held. An observer may read the client's state
// but must not call Start, Stop, Close, Subscribe, Unsubscribe or Publish
// synchronously.
type Client struct {
	identity  ClientIdentity
	transport Transport
	options   clientOptions
	config    Config
	status    ConnectionStatusPublisher
	log       *log.Entry
	emitter   *eventEmitter
	registry  *subscriptionRegistry
	state     atomic.Int32

	// lock guards the fields below and serializes lifecycle operations
	lock               *semaphore.Weighted
	firstStartOccurred bool
	pending            *pendingReconnect
	closed             bool

	handlerMtx sync.RWMutex
	handler    MessageHandler

	// publishMtx orders MessagePublished before MessageDelivered
	publishMtx sync.Mutex
	stop       chan struct{}
}

var _ Service = (*Client)(nil)

// NewClient creates a client for the identity on top of the transport.
// The client does not connect until Start is called.
func NewClient(identity ClientIdentity, transport Transport, opt ...ClientOption) (*Client, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, validationErrorf("transport must be set for client %s", identity.ClientID)
	}

	opts := defaultClientOptions
	for _, o := range opt {
		if err := o(&opts); err != nil {
			return nil, err
		}
	}
	if opts.handler != nil && !identity.Role.CanReceive() {
		return nil, roleErrorf("client %s with role %v cannot receive messages", identity.ClientID, identity.Role)
	}

	logger := opts.logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	c := &Client{
		identity:  identity,
		transport: transport,
		options:   opts,
		config:    opts.config,
		status:    opts.statusPublisher,
		log:       logger.WithFields(log.Fields{"client_id": identity.ClientID, "role": identity.Role.String()}),
		emitter:   newEventEmitter(identity.ClientID),
		registry:  newSubscriptionRegistry(),
		lock:      semaphore.NewWeighted(1),
		handler:   opts.handler,
		stop:      make(chan struct{}),
	}
	if c.status == nil && opts.config.Status != nil {
		c.status = opts.config.Status
	}
	c.emitter.setObserver(opts.observer)
	transport.SetCallback(transportCallback{c: c})
	return c, nil
}

// ClientID returns the id the client connects with
func (c *Client) ClientID() string {
	return c.identity.ClientID
}

// Role returns the connection role of the client
func (c *Client) Role() ConnectionRole {
	return c.identity.Role
}

// SetObserver replaces the observer, nil removes it
func (c *Client) SetObserver(observer Observer) {
	c.emitter.setObserver(observer)
}

// SetMessageHandler sets the handler of arriving messages.
// A publisher cannot receive messages.
func (c *Client) SetMessageHandler(handler MessageHandler) error {
	if !c.identity.Role.CanReceive() {
		return roleErrorf("client %s with role %v cannot receive messages", c.identity.ClientID, c.identity.Role)
	}
	if handler == nil {
		return validationErrorf("message handler must be set")
	}
	c.handlerMtx.Lock()
	defer c.handlerMtx.Unlock()
	c.handler = handler
	return nil
}

func (c *Client) messageHandler() MessageHandler {
	c.handlerMtx.RLock()
	defer c.handlerMtx.RUnlock()
	return c.handler
}

// IsConnected reports whether the transport is connected
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// IsStarted reports whether the last Start completed and the connection
// has not been lost or stopped since
func (c *Client) IsStarted() bool {
	return c.State() == StateConnected
}

// State returns the lifecycle state
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// ConnectedServerURI returns the broker the client is connected to
func (c *Client) ConnectedServerURI() (string, bool) {
	if !c.transport.IsConnected() {
		return "", false
	}
	return c.transport.CurrentServerURI()
}

// Subscriptions returns a copy of the topic subscriptions in the order
// they were added
func (c *Client) Subscriptions() []TopicSubscription {
	return c.registry.snapshot()
}

func (c *Client) acquire(ctx context.Context) error {
	return c.lock.Acquire(ctx, 1)
}

func (c *Client) release() {
	c.lock.Release(1)
}

// wait blocks until the token completes, the timeout expires or ctx is done
func (c *Client) wait(ctx context.Context, token Token, timeout time.Duration, op string) error {
	waitCtx, cf := context.WithTimeout(ctx, timeout)
	defer cf()

	select {
	case <-token.Done():
		return token.Error()
	case <-waitCtx.Done():
		if e := waitCtx.Err(); errors.Is(e, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s did not complete within %v", ErrTimeout, op, timeout)
		}
		return waitCtx.Err()
	}
}

// Start connects the client and subscribes every topic filter not yet
// subscribed. It returns true if the client is connected with all
// subscriptions in place. On failure a reconnect is scheduled.
// Start is idempotent.
func (c *Client) Start(ctx context.Context) bool {
	if err := c.acquire(ctx); err != nil {
		c.log.WithError(err).Warn("Start abandoned while waiting for the client")
		return false
	}
	defer c.release()
	return c.startLocked(ctx)
}

func (c *Client) startLocked(ctx context.Context) bool {
	if c.closed {
		c.log.Error("Client is closed and cannot be started")
		return false
	}

	if err := c.connectAndSubscribe(ctx); err != nil {
		c.log.WithError(err).Error("Client could not be started")
		if c.State() == StateConnecting {
			c.setState(StateStopped)
		}
		c.connectFailure(err)
		c.scheduleReconnect()
		return false
	}

	c.cancelPendingReconnect()
	serverURI, _ := c.transport.CurrentServerURI()
	topics := c.registry.subscribedFilters()
	c.emitter.publishConnectedEvent(serverURI, topics)
	c.publishConnectionStatus(true)
	c.setState(StateConnected)
	c.firstStartOccurred = true
	if c.options.policy != nil {
		c.options.policy.Connected(true)
	}
	c.log.WithFields(log.Fields{
		"server": serverURI,
		"topics": strings.Join(topics, ","),
	}).Info("Client is connected")
	return true
}

func (c *Client) connectAndSubscribe(ctx context.Context) error {
	if !c.transport.IsConnected() {
		c.setState(StateConnecting)
		if err := c.wait(ctx, c.transport.Connect(), c.config.ConnectTimeout, "connect"); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		if !c.transport.IsConnected() {
			return fmt.Errorf("connect: %w", ErrNotConnected)
		}
	}

	for _, sub := range c.registry.pending() {
		if err := c.subscribeEntry(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) subscribeEntry(ctx context.Context, sub TopicSubscription) error {
	token := c.transport.Subscribe(sub.TopicFilter, sub.QoS)
	if err := c.wait(ctx, token, c.config.SubscribeTimeout, "subscribe"); err != nil {
		return fmt.Errorf("subscribe to %q: %w", sub.TopicFilter, err)
	}
	c.registry.setSubscribed(sub.TopicFilter, true)
	c.log.WithFields(log.Fields{"topic_filter": sub.TopicFilter, "qos": sub.QoS}).Info("Subscribed to topic filter")
	return nil
}

// Stop cancels any pending reconnect and disconnects from the broker.
// The subscriptions are kept and replayed by the next Start.
func (c *Client) Stop() {
	_ = c.acquire(context.Background())
	defer c.release()
	c.stopLocked()
}

func (c *Client) stopLocked() {
	c.cancelPendingReconnect()
	c.setState(StateStopped)
	c.firstStartOccurred = false
	c.registry.markAllUnsubscribed()

	if !c.transport.IsConnected() {
		if err := c.transport.CancelReconnect(c.config.DisconnectTimeout); err != nil {
			c.log.WithError(err).Error("Transport reconnect could not be cancelled")
		}
		return
	}

	c.publishConnectionStatus(false)
	timeout := c.config.DisconnectTimeout
	if err := c.transport.Disconnect(timeout); err != nil {
		c.log.WithError(err).Warn("Graceful disconnect failed, disconnecting forcibly")
		if err := c.transport.DisconnectForcibly(timeout); err != nil {
			c.log.WithError(err).Error("Client could not be disconnected")
			return
		}
	}
	c.emitter.publishDisconnectedEvent()
	c.log.Info("Client is disconnected")
}

// Close stops the client and releases the transport, a closed client
// cannot be started again
func (c *Client) Close() error {
	_ = c.acquire(context.Background())
	defer c.release()

	if c.closed {
		return nil
	}
	c.stopLocked()
	c.closed = true
	close(c.stop)

	if err := c.transport.Close(); err != nil {
		c.log.WithError(err).Error("Transport could not be closed")
		return fmt.Errorf("close transport: %w", err)
	}
	c.log.Info("Client is closed")
	return nil
}

// Subscribe adds the topic filter with the default QoS
func (c *Client) Subscribe(ctx context.Context, topicFilter string) error {
	return c.SubscribeQoS(ctx, topicFilter, c.config.DefaultQoS)
}

// SubscribeQoS adds the topic filter to the subscriptions. A filter already
// present with another QoS is unsubscribed and added again. The broker is
// asked right away when connected, otherwise on the next Start. A failed
// broker subscription is logged and retried by the next Start.
func (c *Client) SubscribeQoS(ctx context.Context, topicFilter string, qos QoS) error {
	if err := validateTopicFilter(topicFilter); err != nil {
		return err
	}
	if !qos.Valid() {
		return validationErrorf("invalid %v for topic filter %q", qos, topicFilter)
	}
	if !c.identity.Role.CanReceive() {
		return roleErrorf("client %s with role %v cannot subscribe", c.identity.ClientID, c.identity.Role)
	}

	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.closed {
		return ErrClosed
	}

	logger := c.log.WithFields(log.Fields{"topic_filter": topicFilter, "qos": qos})
	if existing, ok := c.registry.find(topicFilter); ok {
		if existing.QoS == qos {
			logger.Warn("Topic filter is already subscribed")
			return nil
		}
		c.unsubscribeLocked(ctx, existing)
	}

	c.registry.add(topicFilter, qos)
	switch {
	case c.transport.IsConnected():
		sub, _ := c.registry.find(topicFilter)
		if err := c.subscribeEntry(ctx, sub); err != nil {
			logger.WithError(err).Error("Topic filter could not be subscribed")
		}
	case c.firstStartOccurred:
		logger.Warn("Client is not connected, topic filter will be subscribed on the next connect")
	}
	return nil
}

// Unsubscribe removes the topic filter from the subscriptions and
// unsubscribes it at the broker when connected. The filter is removed even
// if the broker does not acknowledge.
func (c *Client) Unsubscribe(ctx context.Context, topicFilter string) error {
	if err := validateTopicFilter(topicFilter); err != nil {
		return err
	}
	if !c.identity.Role.CanReceive() {
		return roleErrorf("client %s with role %v cannot unsubscribe", c.identity.ClientID, c.identity.Role)
	}

	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if sub, ok := c.registry.find(topicFilter); ok {
		c.unsubscribeLocked(ctx, sub)
	}
	return nil
}

func (c *Client) unsubscribeLocked(ctx context.Context, sub TopicSubscription) {
	logger := c.log.WithField("topic_filter", sub.TopicFilter)
	if sub.Subscribed && c.transport.IsConnected() {
		token := c.transport.Unsubscribe(sub.TopicFilter)
		if err := c.wait(ctx, token, c.config.UnsubscribeTimeout, "unsubscribe"); err != nil {
			logger.WithError(err).Error("Topic filter could not be unsubscribed")
		} else {
			logger.Info("Unsubscribed from topic filter")
		}
	}
	c.registry.remove(sub.TopicFilter)
}

// Publish hands the message to the transport. The MessagePublished event
// carries the request's correlation id and the message id, which is
// reported again by MessageDelivered once the broker acknowledged it.
func (c *Client) Publish(ctx context.Context, req PublishRequest) error {
	if !c.identity.Role.CanPublish() {
		return roleErrorf("client %s with role %v cannot publish", c.identity.ClientID, c.identity.Role)
	}
	if err := req.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.send(req.Topic, req.Payload, req.qos(c.config.DefaultQoS), req.retained(), req.CorrelationID); err != nil {
		perr := &PublishError{ClientID: c.identity.ClientID, Request: req, Err: err}
		c.log.WithError(err).WithField("topic", req.Topic).Error("Message could not be published")
		c.emitter.publishPublishFailureEvent(perr)
		return perr
	}
	return nil
}

func (c *Client) send(topic string, payload []byte, qos QoS, retained bool, correlationID string) error {
	c.publishMtx.Lock()
	defer c.publishMtx.Unlock()

	if !c.transport.IsConnected() {
		return ErrNotConnected
	}
	token, err := c.transport.Publish(topic, payload, qos, retained)
	if err != nil {
		return err
	}
	c.emitter.publishMessagePublishedEvent(token.MessageID(), correlationID)
	go c.awaitDelivery(token)
	return nil
}

func (c *Client) awaitDelivery(token DeliveryToken) {
	select {
	case <-token.Done():
	case <-c.stop:
		return
	}
	if err := token.Error(); err != nil {
		c.log.WithError(err).WithField("message_id", token.MessageID()).Warn("Message was not delivered")
		return
	}
	c.deliveryComplete(token.MessageID())
}

func (c *Client) deliveryComplete(messageID uint16) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("message_id", messageID).Errorf("Delivery notification failed: %v", r)
		}
	}()
	// wait for a publish still emitting its MessagePublished event
	c.publishMtx.Lock()
	c.publishMtx.Unlock()
	c.emitter.publishMessageDeliveredEvent(messageID)
}

func (c *Client) publishConnectionStatus(connected bool) {
	if c.status == nil {
		return
	}
	payload := c.status.DisconnectedPayload(c.identity.ClientID, c.identity.Role)
	if connected {
		payload = c.status.ConnectedPayload(c.identity.ClientID, c.identity.Role)
	}
	topic := c.status.StatusTopic()
	if len(payload) == 0 || topic == "" {
		return
	}
	qos, ok := c.status.StatusQoS()
	if !ok {
		qos = c.config.DefaultQoS
	}
	if err := c.send(topic, payload, qos, c.status.StatusRetained(), ""); err != nil {
		c.log.WithError(err).WithField("topic", topic).Error("Connection status could not be published")
	}
}

func (c *Client) isAutoReconnect() bool {
	native := c.transport.AutoReconnect() && c.firstStartOccurred
	return native || (c.options.policy != nil && c.options.scheduler != nil)
}

func (c *Client) connectFailure(err error) {
	c.emitter.publishConnectionFailureEvent(c.isAutoReconnect(), err)
	if c.options.policy != nil {
		c.options.policy.Connected(false)
	}
}

func (c *Client) scheduleReconnect() {
	switch {
	case c.transport.AutoReconnect() && c.firstStartOccurred:
		c.log.Info("Client will be reconnected by the transport")
	case c.options.policy != nil && c.options.scheduler != nil:
		at, ok := c.options.policy.NextReconnectionTime()
		if !ok {
			c.log.Warn("Client will not be reconnected, the reconnect policy gave up")
			return
		}
		c.cancelPendingReconnect()
		c.firstStartOccurred = true
		p := &pendingReconnect{}
		p.task = c.options.scheduler.Schedule(at, func() { c.reconnect(p) })
		c.pending = p
		c.log.WithField("at", at.Format(time.RFC3339Nano)).Info("Client is scheduled to reconnect")
	default:
		c.log.Warn("Client will not be reconnected, no reconnect policy configured")
	}
}

func (c *Client) cancelPendingReconnect() {
	if c.pending == nil {
		return
	}
	c.pending.cancel()
	c.pending = nil
}

// reconnect runs a scheduled Start unless the task was cancelled meanwhile
func (c *Client) reconnect(p *pendingReconnect) {
	_ = c.acquire(context.Background())
	defer c.release()

	if p.cancelled || c.pending != p || c.closed {
		return
	}
	c.pending = nil
	c.startLocked(context.Background())
}

func (c *Client) connectionLost(err error) {
	c.setState(StateStopped)
	c.log.WithError(err).Error("Client lost the connection")

	_ = c.acquire(context.Background())
	defer c.release()

	c.registry.markAllUnsubscribed()
	c.emitter.publishConnectionLostEvent(c.isAutoReconnect(), err)
	if c.closed {
		return
	}
	c.scheduleReconnect()
}

func (c *Client) connectComplete(reconnect bool, serverURI string) {
	if !reconnect {
		return
	}
	_ = c.acquire(context.Background())
	defer c.release()

	// a stopped or closed client must not be revived by the transport
	if c.closed || !c.firstStartOccurred {
		c.log.WithField("server", serverURI).Warn("Transport reconnected a stopped client, disconnecting")
		if err := c.transport.DisconnectForcibly(c.config.DisconnectTimeout); err != nil {
			c.log.WithError(err).Error("Client could not be disconnected")
		}
		return
	}
	c.log.WithField("server", serverURI).Info("Transport reconnected, restoring subscriptions")
	c.startLocked(context.Background())
}

func (c *Client) connectFailureCallback(err error) {
	c.log.WithError(err).Error("Client could not connect")
	_ = c.acquire(context.Background())
	defer c.release()
	c.connectFailure(err)
}

func (c *Client) messageArrived(msg Message) {
	handler := c.messageHandler()
	if handler == nil {
		c.log.WithField("topic", msg.Topic).Debug("Message dropped, no message handler")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("topic", msg.Topic).Errorf("Message handler failed: %v", r)
		}
	}()
	msg.Payload = append([]byte(nil), msg.Payload...)
	if err := handler.HandleMessage(msg); err != nil {
		c.log.WithError(err).WithField("topic", msg.Topic).Error("Message could not be handled")
	}
}

// transportCallback routes transport notifications into the client
type transportCallback struct {
	c *Client
}

func (t transportCallback) ConnectionLost(err error) {
	t.c.connectionLost(err)
}

func (t transportCallback) ConnectComplete(reconnect bool, serverURI string) {
	t.c.connectComplete(reconnect, serverURI)
}

func (t transportCallback) MessageArrived(msg Message) {
	t.c.messageArrived(msg)
}

func (t transportCallback) ConnectFailure(err error) {
	t.c.connectFailureCallback(err)
}
