package mqttsvc

const (
	ConnectedEventName         = "connected"
	DisconnectedEventName      = "disconnected"
	ConnectionLostEventName    = "connection-lost"
	ConnectionFailureEventName = "connection-failure"
	MessagePublishedEventName  = "message-published"
	MessageDeliveredEventName  = "message-delivered"
	PublishFailureEventName    = "publish-failure"
)

// Event is implemented by every lifecycle and message status event
type Event interface {
	EventName() string
	EventClientID() string
}

// Observer receives the events of a client. OnEvent is called synchronously
// on the goroutine that caused the event.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(e Event)

// OnEvent calls f(e)
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// ConnectedEvent is emitted once the client is connected and every
// registered topic filter is subscribed
type ConnectedEvent struct {
	ClientID         string
	ServerURI        string
	SubscribedTopics []string
}

// DisconnectedEvent is emitted after a requested disconnect
type DisconnectedEvent struct {
	ClientID string
}

// ConnectionLostEvent is emitted when an established connection drops
type ConnectionLostEvent struct {
	ClientID      string
	AutoReconnect bool
	Err           error
}

// ConnectionFailureEvent is emitted when a connection attempt fails
type ConnectionFailureEvent struct {
	ClientID      string
	AutoReconnect bool
	Err           error
}

// MessagePublishedEvent is emitted when a message was handed to the
// transport. CorrelationID echoes the value of the publish request.
type MessagePublishedEvent struct {
	ClientID      string
	MessageID     uint16
	CorrelationID string
}

// MessageDeliveredEvent is emitted when the transport completed the delivery
// of a published message
type MessageDeliveredEvent struct {
	ClientID  string
	MessageID uint16
}

// PublishFailureEvent is emitted when a publish request could not be
// handed to the transport
type PublishFailureEvent struct {
	ClientID string
	Err      *PublishError
}

func (e ConnectedEvent) EventName() string         { return ConnectedEventName }
func (e DisconnectedEvent) EventName() string      { return DisconnectedEventName }
func (e ConnectionLostEvent) EventName() string    { return ConnectionLostEventName }
func (e ConnectionFailureEvent) EventName() string { return ConnectionFailureEventName }
func (e MessagePublishedEvent) EventName() string  { return MessagePublishedEventName }
func (e MessageDeliveredEvent) EventName() string  { return MessageDeliveredEventName }
func (e PublishFailureEvent) EventName() string    { return PublishFailureEventName }

func (e ConnectedEvent) EventClientID() string         { return e.ClientID }
func (e DisconnectedEvent) EventClientID() string      { return e.ClientID }
func (e ConnectionLostEvent) EventClientID() string    { return e.ClientID }
func (e ConnectionFailureEvent) EventClientID() string { return e.ClientID }
func (e MessagePublishedEvent) EventClientID() string  { return e.ClientID }
func (e MessageDeliveredEvent) EventClientID() string  { return e.ClientID }
func (e PublishFailureEvent) EventClientID() string    { return e.ClientID }
