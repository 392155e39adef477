package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Forwarder queues messages without blocking the sender and hands them to a
// program in order. tea.Program.Send blocks until the program runs, so the
// widget loop sends here instead.
type Forwarder struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func NewForwarder() *Forwarder {
	return &Forwarder{wake: make(chan struct{}, 1)}
}

func (f *Forwarder) Send(msg tea.Msg) {
	f.mu.Lock()
	f.queue = append(f.queue, msg)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued messages to send until ctx is done.
func (f *Forwarder) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()
		for _, msg := range batch {
			send(msg)
		}
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}
	}
}
