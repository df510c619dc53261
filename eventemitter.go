package mqttsvc

import (
	"sync"
)

// eventEmitter hands events of one client to at most one observer. Events
// are delivered on the caller's goroutine, nothing is queued or retried.
type eventEmitter struct {
	clientID string
	mu       sync.RWMutex
	observer Observer
}

func newEventEmitter(clientID string) *eventEmitter {
	return &eventEmitter{clientID: clientID}
}

func (e *eventEmitter) setObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *eventEmitter) current() Observer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.observer
}

func (e *eventEmitter) emit(build func() Event) {
	o := e.current()
	if o == nil {
		return
	}
	o.OnEvent(build())
}

func (e *eventEmitter) publishConnectedEvent(serverURI string, subscribedTopics []string) {
	e.emit(func() Event {
		topics := make([]string, len(subscribedTopics))
		copy(topics, subscribedTopics)
		return ConnectedEvent{ClientID: e.clientID, ServerURI: serverURI, SubscribedTopics: topics}
	})
}

func (e *eventEmitter) publishDisconnectedEvent() {
	e.emit(func() Event {
		return DisconnectedEvent{ClientID: e.clientID}
	})
}

func (e *eventEmitter) publishConnectionLostEvent(autoReconnect bool, err error) {
	e.emit(func() Event {
		return ConnectionLostEvent{ClientID: e.clientID, AutoReconnect: autoReconnect, Err: err}
	})
}

func (e *eventEmitter) publishConnectionFailureEvent(autoReconnect bool, err error) {
	e.emit(func() Event {
		return ConnectionFailureEvent{ClientID: e.clientID, AutoReconnect: autoReconnect, Err: err}
	})
}

func (e *eventEmitter) publishMessagePublishedEvent(messageID uint16, correlationID string) {
	e.emit(func() Event {
		return MessagePublishedEvent{ClientID: e.clientID, MessageID: messageID, CorrelationID: correlationID}
	})
}

func (e *eventEmitter) publishMessageDeliveredEvent(messageID uint16) {
	e.emit(func() Event {
		return MessageDeliveredEvent{ClientID: e.clientID, MessageID: messageID}
	})
}

func (e *eventEmitter) publishPublishFailureEvent(err *PublishError) {
	e.emit(func() Event {
		return PublishFailureEvent{ClientID: e.clientID, Err: err}
	})
}
