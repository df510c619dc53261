package mqttsvc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeToken struct {
	done chan struct{}
	err  error
	id   uint16
}

func newPendingToken(id uint16) *fakeToken {
	return &fakeToken{done: make(chan struct{}), id: id}
}

func newCompletedToken(err error) *fakeToken {
	t := newPendingToken(0)
	t.complete(err)
	return t
}

func (t *fakeToken) complete(err error) {
	t.err = err
	close(t.done)
}

func (t *fakeToken) Done() <-chan struct{} {
	return t.done
}

func (t *fakeToken) Error() error {
	return t.err
}

func (t *fakeToken) MessageID() uint16 {
	return t.id
}

type fakePublish struct {
	topic    string
	payload  []byte
	qos      QoS
	retained bool
	token    *fakeToken
}

// fakeTransport records the calls of a client and answers with the
// configured outcomes
type fakeTransport struct {
	mu            sync.Mutex
	cb            Callback
	connected     bool
	autoReconnect bool
	reconnecting  bool
	serverURI     string
	calls         []string
	published     []fakePublish
	nextID        uint16
	closed        bool

	connectErr      error
	subscribeErr    map[string]error
	subscribeHang   map[string]bool
	unsubscribeErr  error
	unsubscribeHang bool
	disconnectErr   error
	forcibleErr     error
	publishErr      error
}

var errFakeBroker = errors.New("broker refused")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		serverURI:     "tcp://broker.local:1883",
		subscribeErr:  make(map[string]error),
		subscribeHang: make(map[string]bool),
	}
}

func (f *fakeTransport) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) Connect() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect")
	if f.connectErr != nil {
		return newCompletedToken(f.connectErr)
	}
	f.connected = true
	return newCompletedToken(nil)
}

func (f *fakeTransport) Subscribe(topicFilter string, qos QoS) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("subscribe %s %d", topicFilter, qos)
	if f.subscribeHang[topicFilter] {
		return newPendingToken(0)
	}
	return newCompletedToken(f.subscribeErr[topicFilter])
}

func (f *fakeTransport) Unsubscribe(topicFilter string) Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unsubscribe %s", topicFilter)
	if f.unsubscribeHang {
		return newPendingToken(0)
	}
	return newCompletedToken(f.unsubscribeErr)
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos QoS, retained bool) (DeliveryToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("publish %s", topic)
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.nextID++
	token := newPendingToken(f.nextID)
	f.published = append(f.published, fakePublish{topic: topic, payload: payload, qos: qos, retained: retained, token: token})
	return token, nil
}

func (f *fakeTransport) Disconnect(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	f.connected = false
	return nil
}

func (f *fakeTransport) DisconnectForcibly(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect-forcibly")
	if f.forcibleErr != nil {
		return f.forcibleErr
	}
	f.connected = false
	return nil
}

func (f *fakeTransport) CancelReconnect(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reconnecting {
		f.record("cancel-reconnect")
		f.reconnecting = false
	}
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) CurrentServerURI() (string, bool) {
	return f.serverURI, true
}

func (f *fakeTransport) AutoReconnect() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoReconnect
}

func (f *fakeTransport) SetCallback(cb Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	f.closed = true
	return nil
}

func (f *fakeTransport) callback() Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// drop simulates a lost network connection, an auto reconnecting
// transport starts to reconnect
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.reconnecting = f.autoReconnect
	f.mu.Unlock()
	f.callback().ConnectionLost(err)
}

// restore simulates the transport reconnecting by itself
func (f *fakeTransport) restore() {
	f.mu.Lock()
	f.connected = true
	f.reconnecting = false
	f.mu.Unlock()
	f.callback().ConnectComplete(true, f.serverURI)
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeTransport) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]string, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *fakeTransport) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeTransport) publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := make([]fakePublish, len(f.published))
	copy(p, f.published)
	return p
}

type fakeTask struct {
	at        time.Time
	fn        func()
	cancelled bool
	ran       bool
}

// fakeScheduler keeps scheduled tasks until the test runs them
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) Schedule(at time.Time, task func()) ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{at: at, fn: task}
	s.tasks = append(s.tasks, t)
	return fakeTaskHandle{s: s, t: t}
}

func (s *fakeScheduler) scheduled() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]*fakeTask, len(s.tasks))
	copy(tasks, s.tasks)
	return tasks
}

// fire runs the task even if it was cancelled, as a timer racing with
// Cancel would
func (s *fakeScheduler) fire(t *fakeTask) {
	s.mu.Lock()
	t.ran = true
	s.mu.Unlock()
	t.fn()
}

type fakeTaskHandle struct {
	s *fakeScheduler
	t *fakeTask
}

func (h fakeTaskHandle) Cancel() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.t.cancelled = true
	return !h.t.ran
}

// syncRecorder is an observer safe for events emitted from several goroutines
type syncRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *syncRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *syncRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

func (r *syncRecorder) named(name string) []Event {
	var events []Event
	for _, e := range r.all() {
		if e.EventName() == name {
			events = append(events, e)
		}
	}
	return events
}
