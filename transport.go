package mqttsvc

import "time"

// Token completes when the transport has finished an operation
type Token interface {
	// Done is closed when the operation completed, successfully or not
	Done() <-chan struct{}
	// Error returns the outcome once Done is closed
	Error() error
}

// DeliveryToken tracks the delivery of a published message
type DeliveryToken interface {
	Token
	MessageID() uint16
}

// Callback receives the asynchronous notifications of a transport.
// Implementations of Transport must not call it from within their own
// method calls.
type Callback interface {
	ConnectionLost(err error)
	// ConnectComplete is called after every successful connect, reconnect is
	// true when the transport re-established the connection on its own
	ConnectComplete(reconnect bool, serverURI string)
	MessageArrived(msg Message)
	ConnectFailure(err error)
}

// Transport is the MQTT protocol client the Client drives. It owns the
// network connection, the wire protocol and optional native reconnection.
type Transport interface {
	Connect() Token
	Subscribe(topicFilter string, qos QoS) Token
	Unsubscribe(topicFilter string) Token
	// Publish returns an error when the message could not be queued
	Publish(topic string, payload []byte, qos QoS, retained bool) (DeliveryToken, error)
	Disconnect(timeout time.Duration) error
	DisconnectForcibly(timeout time.Duration) error
	// CancelReconnect stops a native reconnect in progress, it is a no-op
	// when the transport is not reconnecting
	CancelReconnect(timeout time.Duration) error
	IsConnected() bool
	CurrentServerURI() (string, bool)
	// AutoReconnect reports whether the transport reconnects by itself
	AutoReconnect() bool
	SetCallback(cb Callback)
	Close() error
}
