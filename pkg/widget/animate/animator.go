// Package animate drives a progress counter toward a bound, one step per frame.
package animate

import (
	"github.com/rs/zerolog"
)

type Direction int

const (
	Opening Direction = iota
	Closing
	Spin
)

func (d Direction) String() string {
	switch d {
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	case Spin:
		return "spin"
	default:
		return "unknown"
	}
}

const (
	Step = 10
	// OpenedBound is the box height reached when opening completes.
	OpenedBound = 300
	ClosedBound = 0
	// SpinPeriod is where the spin indicator wraps back to zero.
	SpinPeriod = 360
)

// Scheduler delivers a callback on the next frame. Canceling guarantees the
// callback does not run.
type Scheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// Animator owns one progress counter and at most one active run. Starting a
// run cancels the previous one if it has not completed.
type Animator struct {
	sched    Scheduler
	progress int
	current  *Run
	logger   zerolog.Logger
}

type Option func(*Animator)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Animator) {
		a.logger = logger
	}
}

// WithProgress sets the starting value of the counter.
func WithProgress(p int) Option {
	return func(a *Animator) {
		a.progress = p
	}
}

func New(sched Scheduler, opts ...Option) *Animator {
	a := &Animator{
		sched:  sched,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Animator) Progress() int {
	return a.progress
}

// SetProgress resets the counter, typically to a boundary value.
func (a *Animator) SetProgress(p int) {
	a.progress = p
}

// Active reports whether a run is in flight.
func (a *Animator) Active() bool {
	return a.current != nil && a.current.Active()
}

// Current returns the in-flight run, or nil.
func (a *Animator) Current() *Run {
	if !a.Active() {
		return nil
	}
	return a.current
}

// Stop cancels the in-flight run, if any.
func (a *Animator) Stop() bool {
	if a.current == nil {
		return false
	}
	stopped := a.current.Stop()
	a.current = nil
	return stopped
}

// Run starts animating in dir. onTick receives the progress after each step;
// onComplete fires once when the bound is reached. Spin runs never complete.
func (a *Animator) Run(dir Direction, onTick func(progress int), onComplete func()) *Run {
	if a.current != nil && a.current.Active() {
		a.logger.Debug().
			Str("previous", a.current.dir.String()).
			Str("next", dir.String()).
			Msg("replacing in-flight animation")
		a.current.Stop()
	}
	r := &Run{
		a:          a,
		dir:        dir,
		onTick:     onTick,
		onComplete: onComplete,
		active:     true,
	}
	a.current = r
	r.schedule()
	return r
}

// Run is one animation toward a bound.
type Run struct {
	a          *Animator
	dir        Direction
	onTick     func(int)
	onComplete func()
	cancel     func()
	active     bool
	completed  bool
	ticks      int
}

func (r *Run) Direction() Direction { return r.dir }

// Ticks counts the steps taken so far.
func (r *Run) Ticks() int { return r.ticks }

func (r *Run) Active() bool { return r != nil && r.active }

func (r *Run) Completed() bool { return r != nil && r.completed }

// Stop halts the run. onComplete will not be called afterwards. It reports
// whether the run was still active.
func (r *Run) Stop() bool {
	if r == nil || !r.active {
		return false
	}
	r.active = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.a.current == r {
		r.a.current = nil
	}
	return true
}

func (r *Run) schedule() {
	r.cancel = r.a.sched.RequestFrame(r.frame)
}

func (r *Run) frame() {
	if !r.active {
		return
	}
	r.cancel = nil
	a := r.a

	if r.reached() {
		r.finish()
		return
	}

	switch r.dir {
	case Opening:
		a.progress = min(a.progress+Step, OpenedBound)
	case Closing:
		a.progress = max(a.progress-Step, ClosedBound)
	case Spin:
		a.progress += Step
		if a.progress >= SpinPeriod {
			a.progress = 0
		}
	}
	r.ticks++
	if r.onTick != nil {
		r.onTick(a.progress)
	}
	// onTick may have stopped this run or started another one.
	if !r.active {
		return
	}
	if r.reached() {
		r.finish()
		return
	}
	r.schedule()
}

func (r *Run) reached() bool {
	switch r.dir {
	case Opening:
		return r.a.progress >= OpenedBound
	case Closing:
		return r.a.progress <= ClosedBound
	default:
		return false
	}
}

func (r *Run) finish() {
	r.active = false
	r.completed = true
	if r.a.current == r {
		r.a.current = nil
	}
	r.a.logger.Trace().Str("direction", r.dir.String()).Int("ticks", r.ticks).Msg("animation complete")
	if r.onComplete != nil {
		r.onComplete()
	}
}
