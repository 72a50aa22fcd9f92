package game

import (
	"fmt"
	"math"
	"sync"
	"time"

	"econ-empire/internal/clock"
)

type ClockState int

const (
	ClockIdle ClockState = iota
	ClockRunning
	ClockExpired
	ClockCancelled
)

func (s ClockState) String() string {
	switch s {
	case ClockRunning:
		return "running"
	case ClockExpired:
		return "expired"
	case ClockCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

type TickPayload struct {
	RoundID          uint `json:"round_id"`
	RoundNumber      int  `json:"round_number"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

type ExpiredPayload struct {
	RoundID     uint `json:"round_id"`
	RoundNumber int  `json:"round_number"`
}

// RoundClock counts down one round. It emits a tick immediately on Start
// and then once per interval until the deadline, followed by a single
// expiry signal. Emissions happen under the clock's lock, so none can
// follow a completed Cancel.
type RoundClock struct {
	clk      clock.Clock
	sink     Broadcaster
	interval time.Duration
	onExpire func(Round)

	mu       sync.Mutex
	state    ClockState
	round    Round
	deadline time.Time
	last     int
	stop     chan struct{}
	done     chan struct{}
}

func NewRoundClock(clk clock.Clock, sink Broadcaster, interval time.Duration, onExpire func(Round)) *RoundClock {
	if sink == nil {
		sink = NopBroadcaster()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RoundClock{
		clk:      clk,
		sink:     sink,
		interval: interval,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *RoundClock) Start(round Round, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClockIdle {
		return fmt.Errorf("%w: clock is %s", ErrInvalidTransition, c.state)
	}
	now := c.clk.Now()
	c.round = round
	c.deadline = now.Add(duration)
	c.state = ClockRunning
	c.last = c.remaining(now)
	c.emitTick(c.last)

	ticker := c.clk.NewTicker(c.interval)
	go c.loop(ticker)
	return nil
}

// Cancel stops a running clock and waits for its goroutine to exit. It
// reports whether the clock was running.
func (c *RoundClock) Cancel() bool {
	c.mu.Lock()
	if c.state != ClockRunning {
		c.mu.Unlock()
		return false
	}
	c.state = ClockCancelled
	close(c.stop)
	c.mu.Unlock()
	<-c.done
	return true
}

func (c *RoundClock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RoundClock) Round() Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *RoundClock) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Done is closed once the clock stops ticking for any reason.
func (c *RoundClock) Done() <-chan struct{} {
	return c.done
}

func (c *RoundClock) loop(ticker clock.Ticker) {
	if c.advance(c.clk.Now()) {
		ticker.Stop()
		c.finishExpired()
		return
	}
	for {
		select {
		case <-c.stop:
			ticker.Stop()
			close(c.done)
			return
		case now := <-ticker.C():
			if c.advance(now) {
				ticker.Stop()
				c.finishExpired()
				return
			}
		}
	}
}

// advance emits the tick for now and reports whether the clock expired.
// The first call from loop only checks for a zero-length countdown.
func (c *RoundClock) advance(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClockRunning {
		return false
	}
	if c.last == 0 {
		c.expireLocked()
		return true
	}
	remaining := c.remaining(now)
	if remaining >= c.last && now.Before(c.deadline) {
		return false
	}
	if remaining > c.last {
		remaining = c.last
	}
	c.last = remaining
	c.emitTick(remaining)
	if remaining == 0 {
		c.expireLocked()
		return true
	}
	return false
}

func (c *RoundClock) expireLocked() {
	c.state = ClockExpired
	c.sink.Publish(c.round.GameID, EventTimerExpired, ExpiredPayload{
		RoundID:     c.round.ID,
		RoundNumber: c.round.Number,
	})
}

func (c *RoundClock) finishExpired() {
	close(c.done)
	if c.onExpire != nil {
		c.onExpire(c.round)
	}
}

func (c *RoundClock) emitTick(remaining int) {
	c.sink.Publish(c.round.GameID, EventTimerTick, TickPayload{
		RoundID:          c.round.ID,
		RoundNumber:      c.round.Number,
		RemainingSeconds: remaining,
	})
}

func (c *RoundClock) remaining(now time.Time) int {
	left := c.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	// Zero is reserved for the deadline itself.
	return max(1, int(math.Round(left.Seconds())))
}
