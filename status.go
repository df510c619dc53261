package mqttsvc

import "strings"

// ConnectionStatusPublisher supplies the messages a client publishes after
// it connected and before it disconnects
type ConnectionStatusPublisher interface {
	ConnectedPayload(clientID string, role ConnectionRole) []byte
	DisconnectedPayload(clientID string, role ConnectionRole) []byte
	// StatusQoS returns false to use the client's default QoS
	StatusQoS() (QoS, bool)
	StatusRetained() bool
	StatusTopic() string
}

// StatusMessages is a ConnectionStatusPublisher read from configuration.
// The placeholders {client_id} and {role} in the payloads are replaced with
// the client's identity.
type StatusMessages struct {
	Topic        string `yaml:"topic"`
	Connected    string `yaml:"connected"`
	Disconnected string `yaml:"disconnected"`
	QoS          *QoS   `yaml:"qos"`
	Retained     bool   `yaml:"retained"`
}

func (s *StatusMessages) expand(payload, clientID string, role ConnectionRole) []byte {
	if payload == "" {
		return nil
	}
	r := strings.NewReplacer("{client_id}", clientID, "{role}", role.String())
	return []byte(r.Replace(payload))
}

// ConnectedPayload implements ConnectionStatusPublisher
func (s *StatusMessages) ConnectedPayload(clientID string, role ConnectionRole) []byte {
	return s.expand(s.Connected, clientID, role)
}

// DisconnectedPayload implements ConnectionStatusPublisher
func (s *StatusMessages) DisconnectedPayload(clientID string, role ConnectionRole) []byte {
	return s.expand(s.Disconnected, clientID, role)
}

// StatusQoS implements ConnectionStatusPublisher
func (s *StatusMessages) StatusQoS() (QoS, bool) {
	if s.QoS == nil {
		return AtMostOnce, false
	}
	return *s.QoS, true
}

// StatusRetained implements ConnectionStatusPublisher
func (s *StatusMessages) StatusRetained() bool {
	return s.Retained
}

// StatusTopic implements ConnectionStatusPublisher
func (s *StatusMessages) StatusTopic() string {
	return s.Topic
}

func (s *StatusMessages) validate() error {
	if err := validatePublishTopic(s.Topic); err != nil {
		return validationErrorf("status topic: %v", err)
	}
	if s.QoS != nil && !s.QoS.Valid() {
		return validationErrorf("invalid status %v", *s.QoS)
	}
	return nil
}
