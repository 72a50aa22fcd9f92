package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Advance delivers at most one tick to
// every due ticker and blocks until each tick has been received or the
// ticker is stopped.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{
		clock:   c,
		period:  d,
		next:    c.now.Add(d),
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*fakeTicker, 0, len(c.tickers))
	for _, t := range c.tickers {
		if now.Before(t.next) {
			continue
		}
		for !now.Before(t.next) {
			t.next = t.next.Add(t.period)
		}
		due = append(due, t)
	}
	c.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		case <-t.stopped:
		}
	}
}

// Tickers reports how many tickers are currently running.
func (c *Fake) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// WaitForTickers polls until at least n tickers are running or the timeout
// elapses.
func (c *Fake) WaitForTickers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Tickers() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Fake) removeTicker(target *fakeTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tickers {
		if t == target {
			c.tickers = append(c.tickers[:i], c.tickers[i+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock   *Fake
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		t.clock.removeTicker(t)
	})
}
