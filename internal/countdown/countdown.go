package countdown

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSeconds is how long the user has to cancel before the alert fires.
const DefaultSeconds = 10

type State string

const (
	StateIdle      State = "idle"
	StateCounting  State = "counting"
	StateFired     State = "fired"
	StateCancelled State = "cancelled"
)

var ErrAlreadyCounting = errors.New("countdown already running")

// Controller runs the pre-alert countdown. The cancel check happens under
// the same lock as the fire transition, so a cancel racing the final tick
// always wins or always loses atomically, never both.
type Controller struct {
	mu        sync.Mutex
	state     State
	remaining int
	seconds   int
	tick      time.Duration
	stop      chan struct{}
}

func New(seconds int) *Controller {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	return &Controller{
		state:   StateIdle,
		seconds: seconds,
		tick:    time.Second,
	}
}

// Start begins a fresh countdown and invokes onFire if it elapses
// uncancelled. A finished controller (fired or cancelled) can be re-armed;
// a running one cannot.
func (c *Controller) Start(onFire func()) error {
	c.mu.Lock()
	if c.state == StateCounting {
		c.mu.Unlock()
		return ErrAlreadyCounting
	}
	c.state = StateCounting
	c.remaining = c.seconds
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	log.Info().Int("seconds", c.seconds).Msg("countdown started")

	go c.run(stop, onFire)
	return nil
}

func (c *Controller) run(stop chan struct{}, onFire func()) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state != StateCounting {
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining > 0 {
				c.mu.Unlock()
				continue
			}
			c.state = StateFired
			c.mu.Unlock()

			log.Info().Msg("countdown elapsed, firing")
			onFire()
			return
		}
	}
}

// Cancel stops a running countdown. Cancelling an idle or finished
// controller is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCounting {
		return
	}
	c.state = StateCancelled
	close(c.stop)
	log.Info().Int("remaining", c.remaining).Msg("countdown cancelled")
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining reports whole seconds left; zero once fired or cancelled.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCounting {
		return 0
	}
	return c.remaining
}
