package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Runner driven explicitly by the caller on virtual time. Tasks run
// only inside Drain, Advance or Step, on the calling goroutine. Post and After
// are safe to call from any goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	queue  []func()
	timers []*manualTimer
}

var _ Runner = (*Manual)(nil)

type manualTimer struct {
	due      time.Duration
	seq      uint64
	fn       func()
	canceled bool
	fired    bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *Manual) After(d time.Duration, fn func()) func() bool {
	m.mu.Lock()
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.fired || t.canceled {
			return false
		}
		t.canceled = true
		return true
	}
}

// Now is the virtual time elapsed since the Manual was created.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending counts timers that have neither fired nor been canceled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.canceled && !t.fired {
			n++
		}
	}
	return n
}

// Drain runs queued tasks, including ones they post, until the queue is empty.
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
		n++
	}
}

// Step drains the queue, then fires the earliest pending timer and drains
// again. It reports false when no timer was pending.
func (m *Manual) Step() bool {
	m.Drain()
	t := m.popDue(-1)
	if t == nil {
		return false
	}
	t.fn()
	m.Drain()
	return true
}

// Advance moves virtual time forward by d, firing every timer that comes due
// on the way in due order, including timers scheduled by those callbacks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()
	m.Drain()
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
		m.Drain()
	}
	m.mu.Lock()
	if m.now < target {
		m.now = target
	}
	m.mu.Unlock()
}

// popDue removes and returns the earliest live timer due at or before limit.
// A negative limit accepts any timer.
func (m *Manual) popDue(limit time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.canceled && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due == m.timers[j].due {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due < m.timers[j].due
	})
	t := m.timers[0]
	if limit >= 0 && t.due > limit {
		return nil
	}
	t.fired = true
	m.timers = m.timers[1:]
	if t.due > m.now {
		m.now = t.due
	}
	return t
}
