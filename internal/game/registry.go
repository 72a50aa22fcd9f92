package game

import "sync"

// Registry maps game ids to their running RoundClock and hands out the
// per-game locks that serialize mutations of one game.
type Registry struct {
	mu     sync.Mutex
	locks  map[uint]*gameLock
	clocks map[uint]*RoundClock
}

// gameLock is dropped from the map once no caller holds or waits on it.
type gameLock struct {
	mu   sync.Mutex
	refs int
}

func NewRegistry() *Registry {
	return &Registry{
		locks:  make(map[uint]*gameLock),
		clocks: make(map[uint]*RoundClock),
	}
}

// Lock acquires the game's lock and returns its release func.
func (r *Registry) Lock(gameID uint) func() {
	r.mu.Lock()
	lock, ok := r.locks[gameID]
	if !ok {
		lock = &gameLock{}
		r.locks[gameID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, gameID)
		}
		r.mu.Unlock()
	}
}

// Locks reports how many games currently have a lock held or awaited.
func (r *Registry) Locks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Install cancels whatever clock is registered for the game and registers
// next in its place. The prior clock has fully stopped when Install returns.
func (r *Registry) Install(gameID uint, next *RoundClock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.clocks[gameID]; ok && prior != next {
		prior.Cancel()
	}
	r.clocks[gameID] = next
}

// Cancel stops and removes the game's clock. It reports whether a running
// clock was stopped.
func (r *Registry) Cancel(gameID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clocks[gameID]
	if !ok {
		return false
	}
	delete(r.clocks, gameID)
	return c.Cancel()
}

// CancelRound is Cancel restricted to the clock of one round.
func (r *Registry) CancelRound(gameID, roundID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clocks[gameID]
	if !ok || c.Round().ID != roundID {
		return false
	}
	delete(r.clocks, gameID)
	return c.Cancel()
}

// Remove drops c if it is still the game's registered clock.
func (r *Registry) Remove(gameID uint, c *RoundClock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clocks[gameID] == c {
		delete(r.clocks, gameID)
	}
}

func (r *Registry) Get(gameID uint) (*RoundClock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clocks[gameID]
	return c, ok
}

// Running counts clocks still in the running state.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.clocks {
		if c.State() == ClockRunning {
			n++
		}
	}
	return n
}

// CancelAll stops every registered clock.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clocks {
		c.Cancel()
		delete(r.clocks, id)
	}
}
