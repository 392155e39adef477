// Package loop provides the single logical thread the widget runs on.
//
// Every widget method, bus dispatch and animation tick executes as a task on a
// Runner. Tasks run one at a time in the order they were posted; timers post
// their callback as a task when they fire. Code running outside the loop (for
// example a transport read goroutine) re-enters it with Post.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// FrameInterval is the fixed-rate frame period used when no display refresh
// signal is available.
const FrameInterval = time.Second / 60

var ErrStopped = errors.New("loop stopped")

// Runner schedules work on a single logical thread.
type Runner interface {
	// Post queues fn to run after every task queued before it.
	Post(fn func())
	// After queues fn once d has elapsed. The returned cancel reports whether
	// it prevented fn from running.
	After(d time.Duration, fn func()) (cancel func() bool)
}

// Loop is a Runner backed by a goroutine started with Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	logger  zerolog.Logger
}

var _ Runner = (*Loop)(nil)

type Option func(*Loop)

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) After(d time.Duration, fn func()) func() bool {
	var canceled atomic.Bool
	var fired atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if canceled.Load() {
				return
			}
			fired.Store(true)
			fn()
		})
	})
	return func() bool {
		if fired.Load() {
			return false
		}
		canceled.Store(true)
		t.Stop()
		return true
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued tasks until ctx is canceled. Tasks still queued when the
// loop stops are dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug().Msg("loop started")
	defer func() {
		l.mu.Lock()
		l.stopped = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		l.logger.Debug().Int("dropped", dropped).Msg("loop stopped")
	}()
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.runTask(fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("loop task panicked")
		}
	}()
	fn()
}

// Frames adapts a Runner into a frame scheduler firing every interval.
type Frames struct {
	Runner   Runner
	Interval time.Duration
}

// NewFrames returns a fixed-rate frame scheduler at FrameInterval.
func NewFrames(r Runner) Frames {
	return Frames{Runner: r, Interval: FrameInterval}
}

// RequestFrame queues fn for the next frame.
func (f Frames) RequestFrame(fn func()) func() {
	interval := f.Interval
	if interval <= 0 {
		interval = FrameInterval
	}
	cancel := f.Runner.After(interval, fn)
	return func() { cancel() }
}
