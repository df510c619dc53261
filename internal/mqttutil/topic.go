package mqttutil

import (
	"errors"
	"strings"
	"sync"
)

const maxTopicLength = 65535

var (
	ErrInvalidTopic           = errors.New("invalid topic")
	ErrEmptyTopic             = errors.New("empty topics are not allowed")
	ErrEmptySubscriptionTopic = errors.New("empty subscription topics are not allowed")
)

// ValidatePublishTopic checks that a topic used for publishing is valid.
// Returns ErrInvalidTopic if + or # is found in the topic
func ValidatePublishTopic(topic string) error {
	if len(topic) == 0 {
		return ErrEmptyTopic
	}

	if len(topic) > maxTopicLength {
		return ErrInvalidTopic
	}

	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}

	return nil
}

// ValidateSubscribeTopic checks that a topic filter used for
// subscriptions is valid. + must occupy a whole level and #
// must be the last level.
func ValidateSubscribeTopic(topic string) error {
	if len(topic) == 0 {
		return ErrEmptySubscriptionTopic
	}

	if len(topic) > maxTopicLength {
		return ErrInvalidTopic
	}

	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "+":
		case level == "#":
			if i != len(levels)-1 {
				return ErrInvalidTopic
			}
		case strings.ContainsAny(level, "+#"):
			return ErrInvalidTopic
		}
	}
	return nil
}

type node[V any] struct {
	part     string
	value    V
	hasValue bool
	parent   *node[V]
	children map[string]*node[V]
}

func (n *node[V]) prune() {
	for cur := n; cur.parent != nil; cur = cur.parent {
		if cur.hasValue || len(cur.children) != 0 {
			return
		}
		delete(cur.parent.children, cur.part)
	}
}

// TopicMatcher stores one value per topic filter and returns the
// values whose filters match a topic name
type TopicMatcher[V any] struct {
	mu   sync.RWMutex
	root *node[V]
}

// NewTopicMatcher new topic matcher
func NewTopicMatcher[V any]() *TopicMatcher[V] {
	return &TopicMatcher[V]{
		root: &node[V]{children: make(map[string]*node[V])},
	}
}

// Add associates value with the topic filter, replacing any
// previous value for the same filter
func (t *TopicMatcher[V]) Add(filter string, value V) error {
	if err := ValidateSubscribeTopic(filter); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for _, part := range strings.Split(filter, "/") {
		child, ok := cur.children[part]
		if !ok {
			child = &node[V]{
				part:     part,
				parent:   cur,
				children: make(map[string]*node[V]),
			}
			cur.children[part] = child
		}
		cur = child
	}
	cur.value = value
	cur.hasValue = true
	return nil
}

// Remove drops the value stored for the exact topic filter.
// Returns false when nothing was stored for it.
func (t *TopicMatcher[V]) Remove(filter string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	for _, part := range strings.Split(filter, "/") {
		child, ok := cur.children[part]
		if !ok {
			return false
		}
		cur = child
	}
	if !cur.hasValue {
		return false
	}

	var zero V
	cur.value = zero
	cur.hasValue = false
	cur.prune()
	return true
}

// Match returns the values of all filters matching the topic name
func (t *TopicMatcher[V]) Match(topic string) []V {
	if err := ValidatePublishTopic(topic); err != nil {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var values []V
	parts := strings.Split(topic, "/")
	// topics beginning with $ are not matched by wildcards in the first level
	wildcards := !strings.HasPrefix(topic, "$")
	t.match(parts, t.root, wildcards, &values)
	return values
}

func (t *TopicMatcher[V]) match(parts []string, n *node[V], wildcards bool, values *[]V) {
	// "foo/#" also matches "foo", since # includes the parent level
	if c, ok := n.children["#"]; ok && wildcards && c.hasValue {
		*values = append(*values, c.value)
	}

	if len(parts) == 0 {
		if n.hasValue {
			*values = append(*values, n.value)
		}
		return
	}

	if c, ok := n.children["+"]; ok && wildcards {
		t.match(parts[1:], c, true, values)
	}
	if c, ok := n.children[parts[0]]; ok {
		t.match(parts[1:], c, true, values)
	}
}
