package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestForwarderKeepsOrder(t *testing.T) {
	f := NewForwarder()
	// Queued before anyone is listening.
	for i := 0; i < 50; i++ {
		f.Send(heightMsg{progress: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		mu  sync.Mutex
		got []int
	)
	go f.Run(ctx, func(msg tea.Msg) {
		mu.Lock()
		got = append(got, msg.(heightMsg).progress)
		mu.Unlock()
	})
	for i := 50; i < 100; i++ {
		f.Send(heightMsg{progress: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}
