package mqttsvc

import (
	"errors"
	"fmt"

	"github.com/srishina/mqttsvc/internal/mqttutil"
)

// Router is a MessageHandler dispatching messages to the handlers whose
// topic filters match the message topic. Filters may use the + and #
// wildcards.
type Router struct {
	matcher  *mqttutil.TopicMatcher[MessageHandler]
	fallback MessageHandler
}

// NewRouter creates a router, messages no filter matches are passed to
// fallback when it is not nil
func NewRouter(fallback MessageHandler) *Router {
	return &Router{
		matcher:  mqttutil.NewTopicMatcher[MessageHandler](),
		fallback: fallback,
	}
}

// Handle registers the handler for the topic filter, replacing the
// handler previously registered for it
func (r *Router) Handle(topicFilter string, handler MessageHandler) error {
	if handler == nil {
		return validationErrorf("handler for topic filter %q must be set", topicFilter)
	}
	if err := validateTopicFilter(topicFilter); err != nil {
		return err
	}
	return r.matcher.Add(topicFilter, handler)
}

// HandleFunc registers a function as handler for the topic filter
func (r *Router) HandleFunc(topicFilter string, fn func(msg Message) error) error {
	return r.Handle(topicFilter, MessageHandlerFunc(fn))
}

// Remove unregisters the handler of the topic filter
func (r *Router) Remove(topicFilter string) bool {
	return r.matcher.Remove(topicFilter)
}

// HandleMessage implements MessageHandler. Every matching handler is
// called, their errors are joined.
func (r *Router) HandleMessage(msg Message) error {
	handlers := r.matcher.Match(msg.Topic)
	if len(handlers) == 0 {
		if r.fallback != nil {
			return r.fallback.HandleMessage(msg)
		}
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h.HandleMessage(msg); err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", msg.Topic, err))
		}
	}
	return errors.Join(errs...)
}
