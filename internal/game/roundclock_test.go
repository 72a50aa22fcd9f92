package game

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"econ-empire/internal/clock"
)

type tickSink struct {
	mu     sync.Mutex
	events []string
	ticks  []int
}

func (s *tickSink) Publish(_ uint, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if p, ok := payload.(TickPayload); ok {
		s.ticks = append(s.ticks, p.RemainingSeconds)
	}
}

func (s *tickSink) snapshot() ([]string, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...), append([]int(nil), s.ticks...)
}

func TestRoundClockCountsDownAndExpiresOnce(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &tickSink{}
	expired := make(chan Round, 2)
	c := NewRoundClock(fake, sink, time.Second, func(r Round) { expired <- r })

	round := Round{ID: 9, GameID: 3, Number: 2, State: RoundActive}
	if err := c.Start(round, 5*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		fake.Advance(time.Second)
	}
	select {
	case r := <-expired:
		if r.ID != round.ID {
			t.Fatalf("expected round %d, got %d", round.ID, r.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected expiry callback")
	}
	fake.Advance(time.Second)

	events, ticks := sink.snapshot()
	want := []int{5, 4, 3, 2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("expected ticks %v, got %v", want, ticks)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("expected ticks %v, got %v", want, ticks)
		}
	}
	if events[len(events)-1] != EventTimerExpired {
		t.Fatalf("expected expiry last, got %v", events)
	}
	if c.State() != ClockExpired {
		t.Fatalf("expected expired state, got %s", c.State())
	}
	if len(expired) != 0 {
		t.Fatalf("expected a single expiry callback")
	}
	if c.Cancel() {
		t.Fatalf("expected cancel of an expired clock to report false")
	}
}

func TestRoundClockCancelStopsEmissions(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &tickSink{}
	c := NewRoundClock(fake, sink, time.Second, func(Round) { t.Errorf("unexpected expiry") })
	if err := c.Start(Round{ID: 1, GameID: 1, Number: 1}, 3*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	fake.Advance(time.Second)
	if !c.Cancel() {
		t.Fatalf("expected cancel to stop a running clock")
	}
	fake.Advance(5 * time.Second)

	_, ticks := sink.snapshot()
	if len(ticks) != 2 || ticks[0] != 3 || ticks[1] != 2 {
		t.Fatalf("expected ticks [3 2], got %v", ticks)
	}
	if fake.Tickers() != 0 {
		t.Fatalf("expected ticker to be stopped")
	}
	if c.State() != ClockCancelled {
		t.Fatalf("expected cancelled, got %s", c.State())
	}
	if err := c.Start(Round{ID: 1}, time.Second); err == nil {
		t.Fatalf("expected restart of a cancelled clock to fail")
	}
}

func TestRoundClockTicksNeverIncrease(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &tickSink{}
	done := make(chan struct{})
	c := NewRoundClock(fake, sink, 400*time.Millisecond, func(Round) { close(done) })
	if err := c.Start(Round{ID: 1, GameID: 1, Number: 1}, 2*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 6; i++ {
		fake.Advance(400 * time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected expiry")
	}
	_, ticks := sink.snapshot()
	for i := 1; i < len(ticks); i++ {
		if ticks[i] >= ticks[i-1] {
			t.Fatalf("expected strictly decreasing ticks, got %v", ticks)
		}
	}
	if ticks[len(ticks)-1] != 0 {
		t.Fatalf("expected final tick of 0, got %v", ticks)
	}
}

func TestRoundClockZeroDurationExpiresImmediately(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &tickSink{}
	c := NewRoundClock(fake, sink, time.Second, nil)
	if err := c.Start(Round{ID: 1, GameID: 1, Number: 1}, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected clock to finish")
	}
	events, ticks := sink.snapshot()
	if len(ticks) != 1 || ticks[0] != 0 {
		t.Fatalf("expected single zero tick, got %v", ticks)
	}
	if events[len(events)-1] != EventTimerExpired {
		t.Fatalf("expected expiry, got %v", events)
	}
}

func TestRegistryInstallCancelsPriorClock(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := NewRegistry()
	first := NewRoundClock(fake, nil, time.Second, nil)
	reg.Install(1, first)
	if err := first.Start(Round{ID: 1, GameID: 1, Number: 1}, time.Minute); err != nil {
		t.Fatalf("start: %v", err)
	}
	second := NewRoundClock(fake, nil, time.Second, nil)
	reg.Install(1, second)
	if first.State() != ClockCancelled {
		t.Fatalf("expected first clock cancelled, got %s", first.State())
	}
	if err := second.Start(Round{ID: 2, GameID: 1, Number: 2}, time.Minute); err != nil {
		t.Fatalf("start: %v", err)
	}
	if reg.CancelRound(1, 1) {
		t.Fatalf("expected no cancel for a stale round id")
	}
	if reg.Running() != 1 {
		t.Fatalf("expected one running clock, got %d", reg.Running())
	}
	reg.Remove(1, first)
	if _, ok := reg.Get(1); !ok {
		t.Fatalf("expected remove of a stale clock to be a no-op")
	}
	if !reg.CancelRound(1, 2) {
		t.Fatalf("expected cancel of the running round")
	}
	if reg.Running() != 0 || fake.Tickers() != 0 {
		t.Fatalf("expected everything stopped")
	}
}

func TestRegistryLocksSerializePerGameAndArePruned(t *testing.T) {
	reg := NewRegistry()
	var holders [3]atomic.Int32
	var overlapped atomic.Bool
	counts := make([]int, 3)

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		gameID := uint(i % 3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := reg.Lock(gameID)
			if holders[gameID].Add(1) != 1 {
				overlapped.Store(true)
			}
			counts[gameID]++
			holders[gameID].Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if overlapped.Load() {
		t.Fatalf("expected one holder per game at a time")
	}
	for gameID, n := range counts {
		if n != 20 {
			t.Fatalf("game %d: expected 20 increments, got %d", gameID, n)
		}
	}
	if n := reg.Locks(); n != 0 {
		t.Fatalf("expected released locks to be pruned, got %d", n)
	}
}
