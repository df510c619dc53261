package mqttsvc

import (
	"strings"

	"github.com/srishina/mqttsvc/internal/mqttutil"
)

// Message is an application message received from the broker
type Message struct {
	Topic     string
	Payload   []byte
	QoS       QoS
	Retained  bool
	Duplicate bool
	MessageID uint16
}

// MessageHandler receives the messages arriving on the client's subscriptions.
// It is called on the transport's goroutine, errors are logged.
type MessageHandler interface {
	HandleMessage(msg Message) error
}

// MessageHandlerFunc adapts a function to the MessageHandler interface
type MessageHandlerFunc func(msg Message) error

// HandleMessage calls f(msg)
func (f MessageHandlerFunc) HandleMessage(msg Message) error {
	return f(msg)
}

// PublishRequest describes an outbound message. A nil QoS uses the configured
// default QoS, a nil Retained publishes a non retained message.
// The CorrelationID is reported back in the MessagePublished event.
type PublishRequest struct {
	Topic         string
	Payload       []byte
	QoS           *QoS
	Retained      *bool
	CorrelationID string
}

func (r PublishRequest) qos(def QoS) QoS {
	if r.QoS != nil {
		return *r.QoS
	}
	return def
}

func (r PublishRequest) retained() bool {
	return r.Retained != nil && *r.Retained
}

func (r PublishRequest) validate() error {
	if err := validatePublishTopic(r.Topic); err != nil {
		return err
	}
	if len(r.Payload) == 0 {
		return validationErrorf("payload for topic %q must not be empty", r.Topic)
	}
	if r.QoS != nil && !r.QoS.Valid() {
		return validationErrorf("invalid %v for topic %q", *r.QoS, r.Topic)
	}
	return nil
}

func validatePublishTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return validationErrorf("publish topic must be set")
	}
	if err := mqttutil.ValidatePublishTopic(topic); err != nil {
		return validationErrorf("publish topic %q: %v", topic, err)
	}
	return nil
}

func validateTopicFilter(topicFilter string) error {
	if strings.TrimSpace(topicFilter) == "" {
		return validationErrorf("topic filter must be set")
	}
	if err := mqttutil.ValidateSubscribeTopic(topicFilter); err != nil {
		return validationErrorf("topic filter %q: %v", topicFilter, err)
	}
	return nil
}
