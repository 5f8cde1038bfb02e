package utility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gridCanvas struct {
	mu    sync.Mutex
	w, h  int
	draws int
}

func (c *gridCanvas) Width() int  { return c.w }
func (c *gridCanvas) Height() int { return c.h }
func (c *gridCanvas) Draw(x, y int, color string) {
	c.mu.Lock()
	c.draws++
	c.mu.Unlock()
}

type blocking struct {
	started chan struct{}
}

func (b blocking) ID() string       { return "blocking" }
func (b blocking) Describe() string { return "runs until cancelled" }
func (b blocking) Run(ctx context.Context, _ Canvas) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestExecuteRunsToCompletion(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(Fill{Color: "FF0000"})

	canvas := &gridCanvas{w: 4, h: 3}
	done := make(chan error, 1)
	require.NoError(t, reg.Execute(context.Background(), "lobby", "fill", canvas, func(err error) {
		done <- err
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("utility did not finish")
	}
	canvas.mu.Lock()
	defer canvas.mu.Unlock()
	assert.Equal(t, 12, canvas.draws)
}

func TestExecuteUnknownUtility(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	err := reg.Execute(context.Background(), "lobby", "nope", &gridCanvas{}, nil)
	assert.Error(t, err)
}

func TestStopCancelsRunning(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	b := blocking{started: make(chan struct{})}
	reg.Register(b)

	done := make(chan error, 1)
	require.NoError(t, reg.Execute(context.Background(), "lobby", "blocking", &gridCanvas{}, func(err error) {
		done <- err
	}))
	<-b.started

	assert.True(t, reg.Stop("lobby"))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("utility was not cancelled")
	}
	// Nothing left to stop.
	assert.False(t, reg.Stop("lobby"))
}

func TestExecuteReplacesRunning(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	b := blocking{started: make(chan struct{})}
	reg.Register(b)
	reg.Register(Fill{})

	first := make(chan error, 1)
	require.NoError(t, reg.Execute(context.Background(), "lobby", "blocking", &gridCanvas{}, func(err error) {
		first <- err
	}))
	<-b.started

	require.NoError(t, reg.Execute(context.Background(), "lobby", "fill", &gridCanvas{w: 1, h: 1}, nil))
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("previous utility was not cancelled")
	}
}

func TestList(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(Fill{})
	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "fill", infos[0].ID)
	assert.NotEmpty(t, infos[0].Description)
}
