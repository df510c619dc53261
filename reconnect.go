package mqttsvc

import (
	"sync"
	"time"
)

// ReconnectPolicy decides when a client that failed to connect, or lost its
// connection, tries again
type ReconnectPolicy interface {
	// Connected is told the outcome of every connection attempt
	Connected(successful bool)
	// NextReconnectionTime returns false when no further attempt should be made
	NextReconnectionTime() (time.Time, bool)
}

// ScheduledTask is a handle to a task submitted to a Scheduler
type ScheduledTask interface {
	// Cancel prevents the task from running, returns false if it already ran
	Cancel() bool
}

// Scheduler runs a task once at the given time
type Scheduler interface {
	Schedule(at time.Time, task func()) ScheduledTask
}

const (
	defaultInitialReconnectDelay = time.Second
	defaultMaxReconnectDelay     = 20 * time.Second
)

// BackoffPolicy waits initial delay after the first failure and doubles the
// delay on every further failure, up to the max delay. A successful
// connection resets it.
type BackoffPolicy struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	delay   time.Duration
	now     func() time.Time
}

// NewBackoffPolicy returns a policy using initial and max delays,
// non positive values select 1s and 20s
func NewBackoffPolicy(initial, max time.Duration) *BackoffPolicy {
	if initial <= 0 {
		initial = defaultInitialReconnectDelay
	}
	if max <= 0 {
		max = defaultMaxReconnectDelay
	}
	if max < initial {
		max = initial
	}
	return &BackoffPolicy{initial: initial, max: max, delay: initial, now: time.Now}
}

// Connected implements ReconnectPolicy
func (p *BackoffPolicy) Connected(successful bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if successful {
		p.delay = p.initial
		return
	}
	p.delay *= 2
	if p.delay > p.max {
		p.delay = p.max
	}
}

// Delay returns the wait before the next attempt
func (p *BackoffPolicy) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// NextReconnectionTime implements ReconnectPolicy, it always retries
func (p *BackoffPolicy) NextReconnectionTime() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Add(p.delay), true
}

// TimerScheduler runs tasks on their own goroutine using time.AfterFunc
type TimerScheduler struct{}

// Schedule implements Scheduler
func (TimerScheduler) Schedule(at time.Time, task func()) ScheduledTask {
	return timerTask{timer: time.AfterFunc(time.Until(at), task)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() bool {
	return t.timer.Stop()
}

// pendingReconnect is the reconnect task currently owned by a client.
// cancelled is guarded by the client lock.
type pendingReconnect struct {
	task      ScheduledTask
	cancelled bool
}

func (p *pendingReconnect) cancel() {
	p.cancelled = true
	if p.task != nil {
		p.task.Cancel()
	}
}
