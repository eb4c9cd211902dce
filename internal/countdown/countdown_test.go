package countdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFastController(seconds int) *Controller {
	c := New(seconds)
	c.tick = 5 * time.Millisecond
	return c
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if c.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("controller never reached state %s, stuck at %s", want, c.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestController_FiresAfterElapse(t *testing.T) {
	c := newFastController(3)
	var fired atomic.Int32

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	waitForState(t, c, StateFired)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, c.Remaining())
}

func TestController_CancelSuppressesFire(t *testing.T) {
	c := newFastController(5)
	var fired atomic.Int32

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	time.Sleep(8 * time.Millisecond)
	c.Cancel()

	assert.Equal(t, StateCancelled, c.State())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestController_StartWhileCountingFails(t *testing.T) {
	c := newFastController(10)
	require.NoError(t, c.Start(func() {}))

	err := c.Start(func() {})
	assert.ErrorIs(t, err, ErrAlreadyCounting)
	c.Cancel()
}

func TestController_ReArmAfterCancel(t *testing.T) {
	c := newFastController(2)
	var fired atomic.Int32

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	c.Cancel()
	assert.Equal(t, StateCancelled, c.State())

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	waitForState(t, c, StateFired)
	assert.Equal(t, int32(1), fired.Load())
}

func TestController_ReArmAfterFire(t *testing.T) {
	c := newFastController(1)
	var fired atomic.Int32

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	waitForState(t, c, StateFired)

	require.NoError(t, c.Start(func() { fired.Add(1) }))
	waitForState(t, c, StateFired)
	assert.Equal(t, int32(2), fired.Load())
}

func TestController_CancelIdleIsNoop(t *testing.T) {
	c := newFastController(3)
	c.Cancel()
	assert.Equal(t, StateIdle, c.State())
}

func TestController_RemainingDecreases(t *testing.T) {
	c := New(10)
	c.tick = 20 * time.Millisecond

	require.NoError(t, c.Start(func() {}))
	assert.Equal(t, 10, c.Remaining())

	time.Sleep(50 * time.Millisecond)
	assert.Less(t, c.Remaining(), 10)
	c.Cancel()
}
