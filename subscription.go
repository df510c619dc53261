package mqttsvc

import "sync"

// TopicSubscription is a topic filter the client is interested in,
// the requested QoS and whether the broker has acknowledged it on the
// current connection
type TopicSubscription struct {
	TopicFilter string
	QoS         QoS
	Subscribed  bool
}

// subscriptionRegistry keeps topic subscriptions in insertion order, at most
// one per topic filter. Entries never leave the registry by reference, every
// accessor returns copies.
type subscriptionRegistry struct {
	mu      sync.RWMutex
	entries []TopicSubscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{}
}

func (r *subscriptionRegistry) indexOf(topicFilter string) int {
	for i := range r.entries {
		if r.entries[i].TopicFilter == topicFilter {
			return i
		}
	}
	return -1
}

// find returns the entry for the exact, case sensitive topic filter
func (r *subscriptionRegistry) find(topicFilter string) (TopicSubscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(topicFilter); i != -1 {
		return r.entries[i], true
	}
	return TopicSubscription{}, false
}

// add appends a new unsubscribed entry, returns false if the topic filter
// is already present
func (r *subscriptionRegistry) add(topicFilter string, qos QoS) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(topicFilter) != -1 {
		return false
	}
	r.entries = append(r.entries, TopicSubscription{TopicFilter: topicFilter, QoS: qos})
	return true
}

// remove drops the entry for the topic filter, preserving the order of
// the remaining entries
func (r *subscriptionRegistry) remove(topicFilter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(topicFilter)
	if i == -1 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// setSubscribed updates the acknowledgement flag of the entry
func (r *subscriptionRegistry) setSubscribed(topicFilter string, subscribed bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(topicFilter)
	if i == -1 {
		return false
	}
	r.entries[i].Subscribed = subscribed
	return true
}

// pending returns the entries not yet acknowledged by the broker
func (r *subscriptionRegistry) pending() []TopicSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []TopicSubscription
	for _, e := range r.entries {
		if !e.Subscribed {
			subs = append(subs, e)
		}
	}
	return subs
}

// subscribedFilters returns the topic filters currently acknowledged
func (r *subscriptionRegistry) subscribedFilters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filters := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Subscribed {
			filters = append(filters, e.TopicFilter)
		}
	}
	return filters
}

func (r *subscriptionRegistry) markAllUnsubscribed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		r.entries[i].Subscribed = false
	}
}

// snapshot returns copies of all entries
func (r *subscriptionRegistry) snapshot() []TopicSubscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := make([]TopicSubscription, len(r.entries))
	copy(subs, r.entries)
	return subs
}
