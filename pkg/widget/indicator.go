package widget

import (
	"github.com/go-go-golems/supportchat/pkg/widget/animate"
)

// Indicator is the busy overlay with its spinning loader.
type Indicator struct {
	spin      *animate.Animator
	presenter Presenter
	visible   bool
}

func NewIndicator(sched animate.Scheduler, p Presenter) *Indicator {
	return &Indicator{
		spin:      animate.New(sched),
		presenter: p,
	}
}

func (i *Indicator) Visible() bool {
	return i.visible
}

// Degrees is the current rotation of the loader.
func (i *Indicator) Degrees() int {
	return i.spin.Progress()
}

// Start shows the overlay and begins spinning. Starting a visible indicator is
// a no-op.
func (i *Indicator) Start() {
	if i.visible {
		return
	}
	i.visible = true
	i.presenter.ShowIndicator()
	i.spin.Run(animate.Spin, i.presenter.SpinIndicator, nil)
}

func (i *Indicator) Stop() {
	if !i.visible {
		return
	}
	i.spin.Stop()
	i.visible = false
	i.presenter.HideIndicator()
}
