package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceDeliversTick(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	got := make(chan time.Time, 1)
	go func() {
		got <- <-ticker.C()
	}()
	c.Advance(time.Second)

	select {
	case at := <-got:
		if !at.Equal(start.Add(time.Second)) {
			t.Fatalf("expected tick at %s, got %s", start.Add(time.Second), at)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected tick to be delivered")
	}
}

func TestFakeAdvanceSkipsTickersNotDue(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	ticker := c.NewTicker(2 * time.Second)
	defer ticker.Stop()

	c.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatalf("expected no tick before the period elapsed")
	default:
	}
}

func TestFakeStoppedTickerDoesNotBlockAdvance(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	if c.Tickers() != 0 {
		t.Fatalf("expected stopped ticker to be removed, got %d", c.Tickers())
	}

	done := make(chan struct{})
	go func() {
		c.Advance(5 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected advance to return")
	}
	if !c.Now().Equal(time.Unix(5, 0).UTC()) {
		t.Fatalf("expected now to move forward, got %s", c.Now())
	}
}
