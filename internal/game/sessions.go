package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"econ-empire/internal/clock"
)

type Options struct {
	Clock               clock.Clock
	Broadcaster         Broadcaster
	Rand                Rand
	TickInterval        time.Duration
	AutoCloseAttempts   int
	DefaultTotalRounds  int
	DefaultRoundSeconds int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Broadcaster == nil {
		o.Broadcaster = NopBroadcaster()
	}
	if o.Rand == nil {
		o.Rand = NewRand(0)
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.AutoCloseAttempts <= 0 {
		o.AutoCloseAttempts = 30
	}
	if o.DefaultTotalRounds <= 0 {
		o.DefaultTotalRounds = 5
	}
	if o.DefaultRoundSeconds <= 0 {
		o.DefaultRoundSeconds = 900
	}
	return o
}

type RoundPayload struct {
	RoundID     uint       `json:"round_id"`
	RoundNumber int        `json:"round_number"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Sessions drives game and round lifecycles. Mutations of one game are
// serialized through the registry's per-game lock; distinct games proceed
// independently.
type Sessions struct {
	repo     Repository
	opts     Options
	registry *Registry
	seeder   *Seeder
	ledger   *Ledger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewSessions(repo Repository, opts Options) *Sessions {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Sessions{
		repo:     repo,
		opts:     opts,
		registry: NewRegistry(),
		seeder:   NewSeeder(repo, opts.Rand),
		ledger:   NewLedger(repo),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Sessions) Registry() *Registry {
	return s.registry
}

func (s *Sessions) Ledger() *Ledger {
	return s.ledger
}

// Shutdown stops every clock and abandons pending auto-close retries.
func (s *Sessions) Shutdown() {
	s.cancel()
	s.registry.CancelAll()
}

func (s *Sessions) CreateGame(ctx context.Context, id Identity, totalRounds, roundSeconds int) (Game, []Round, error) {
	if err := requireOperator(id); err != nil {
		return Game{}, nil, err
	}
	if totalRounds == 0 {
		totalRounds = s.opts.DefaultTotalRounds
	}
	if roundSeconds == 0 {
		roundSeconds = s.opts.DefaultRoundSeconds
	}
	if totalRounds < MinTotalRounds || totalRounds > MaxTotalRounds {
		return Game{}, nil, fmt.Errorf("%w: total rounds must be between %d and %d", ErrInvalidInput, MinTotalRounds, MaxTotalRounds)
	}
	if roundSeconds < MinRoundSeconds || roundSeconds > MaxRoundSeconds {
		return Game{}, nil, fmt.Errorf("%w: round duration must be between %d and %d seconds", ErrInvalidInput, MinRoundSeconds, MaxRoundSeconds)
	}
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return Game{}, nil, err
	}
	if err := CheckPool(countries); err != nil {
		return Game{}, nil, err
	}

	g := Game{
		TotalRounds:          totalRounds,
		RoundDurationSeconds: roundSeconds,
		State:                GameLobby,
		CreatedAt:            s.opts.Clock.Now(),
	}
	rounds := make([]Round, 0, totalRounds)
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := tx.CreateGame(ctx, &g); err != nil {
			return err
		}
		for n := 1; n <= totalRounds; n++ {
			r := Round{GameID: g.ID, Number: n, State: RoundPending}
			if err := tx.CreateRound(ctx, &r); err != nil {
				return err
			}
			rounds = append(rounds, r)
		}
		return tx.RecordEvent(ctx, Event{
			GameID:  g.ID,
			UserID:  userRef(id),
			Type:    "game_created",
			Payload: EventPayload{TotalRounds: totalRounds, DurationSecs: roundSeconds},
		})
	})
	if err != nil {
		return Game{}, nil, err
	}
	if err := s.seeder.Seed(ctx, g.ID); err != nil {
		log.Printf("economy seeding failed game_id=%d error=%v", g.ID, err)
		s.discardGame(ctx, g.ID)
		return Game{}, nil, err
	}
	log.Printf("game created game_id=%d rounds=%d round_seconds=%d", g.ID, totalRounds, roundSeconds)
	return g, rounds, nil
}

// discardGame removes a game whose economy could not be generated. If the
// removal fails too, Start still refuses the game as unseeded.
func (s *Sessions) discardGame(ctx context.Context, gameID uint) {
	err := s.repo.InTx(ctx, func(tx Repository) error {
		return tx.DeleteGame(ctx, gameID)
	})
	if err != nil {
		log.Printf("discard unseeded game failed game_id=%d error=%v", gameID, err)
		return
	}
	log.Printf("unseeded game discarded game_id=%d", gameID)
}

func (s *Sessions) Start(ctx context.Context, id Identity, gameID uint) (Round, error) {
	if err := requireOperator(id); err != nil {
		return Round{}, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Round{}, err
	}
	if g.State != GameLobby {
		return Round{}, fmt.Errorf("%w: game is %s", ErrAlreadyStarted, g.State)
	}
	seeded, err := s.seeder.Seeded(ctx, gameID)
	if err != nil {
		return Round{}, err
	}
	if !seeded {
		return Round{}, fmt.Errorf("%w: game %d", ErrNotSeeded, gameID)
	}
	rounds, err := s.repo.ListRounds(ctx, gameID)
	if err != nil {
		return Round{}, err
	}
	first := roundByNumber(rounds, 1)
	if first == nil {
		return Round{}, fmt.Errorf("round 1: %w", ErrNotFound)
	}
	round, err := s.activate(ctx, id, g, *first, nil, GameInProgress)
	if err != nil {
		return Round{}, err
	}
	log.Printf("game started game_id=%d round_id=%d", gameID, round.ID)
	return round, nil
}

func (s *Sessions) Advance(ctx context.Context, id Identity, gameID uint) (Round, error) {
	if err := requireOperator(id); err != nil {
		return Round{}, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Round{}, err
	}
	switch g.State {
	case GameLobby:
		return Round{}, fmt.Errorf("%w: game has not started", ErrInvalidTransition)
	case GameEnded:
		return Round{}, ErrGameEnded
	}
	rounds, err := s.repo.ListRounds(ctx, gameID)
	if err != nil {
		return Round{}, err
	}
	var active *Round
	lastClosed := 0
	for i := range rounds {
		switch rounds[i].State {
		case RoundActive:
			active = &rounds[i]
		case RoundClosed:
			if rounds[i].Number > lastClosed {
				lastClosed = rounds[i].Number
			}
		}
	}
	nextNumber := lastClosed + 1
	if active != nil {
		nextNumber = active.Number + 1
	}
	if nextNumber > g.TotalRounds {
		return Round{}, fmt.Errorf("%w: game has %d rounds", ErrNoMoreRounds, g.TotalRounds)
	}
	next := roundByNumber(rounds, nextNumber)
	if next == nil {
		return Round{}, fmt.Errorf("round %d: %w", nextNumber, ErrNotFound)
	}
	if next.State != RoundPending {
		return Round{}, fmt.Errorf("%w: round %d is %s", ErrInvalidTransition, nextNumber, next.State)
	}
	round, err := s.activate(ctx, id, g, *next, active, g.State)
	if err != nil {
		return Round{}, err
	}
	log.Printf("round advanced game_id=%d round_number=%d", gameID, round.Number)
	return round, nil
}

// activate closes previous (when still active), activates next and moves
// the game to state, in one transaction, then replaces the game's clock.
// The caller holds the game lock.
func (s *Sessions) activate(ctx context.Context, id Identity, g Game, next Round, previous *Round, state GameState) (Round, error) {
	now := s.opts.Clock.Now()
	endsAt := now.Add(g.RoundDuration())
	var closed Round
	err := s.repo.InTx(ctx, func(tx Repository) error {
		if previous != nil {
			closed = *previous
			closed.State = RoundClosed
			closed.EndsAt = &now
			if err := tx.UpdateRound(ctx, closed); err != nil {
				return err
			}
			if err := tx.RecordEvent(ctx, roundEvent(id, closed, "round_closed", "advanced")); err != nil {
				return err
			}
		}
		next.State = RoundActive
		next.StartsAt = &now
		next.EndsAt = &endsAt
		if err := tx.UpdateRound(ctx, next); err != nil {
			return err
		}
		if g.State != state {
			if err := tx.UpdateGameState(ctx, g.ID, state); err != nil {
				return err
			}
		}
		return tx.RecordEvent(ctx, roundEvent(id, next, "round_started", ""))
	})
	if err != nil {
		return Round{}, err
	}

	c := NewRoundClock(s.opts.Clock, s.opts.Broadcaster, s.opts.TickInterval, nil)
	c.onExpire = s.expiryHandler(c)
	s.registry.Install(g.ID, c)
	if previous != nil {
		s.opts.Broadcaster.Publish(g.ID, EventRoundEnded, RoundPayload{
			RoundID:     closed.ID,
			RoundNumber: closed.Number,
			Reason:      "advanced",
		})
	}
	s.opts.Broadcaster.Publish(g.ID, EventRoundStarted, RoundPayload{
		RoundID:     next.ID,
		RoundNumber: next.Number,
		EndsAt:      &endsAt,
	})
	if err := c.Start(next, g.RoundDuration()); err != nil {
		return Round{}, err
	}
	return next, nil
}

func (s *Sessions) CloseRound(ctx context.Context, id Identity, gameID, roundID uint) (Round, error) {
	if err := requireOperator(id); err != nil {
		return Round{}, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()
	return s.closeRoundLocked(ctx, id, gameID, roundID, "manual")
}

func (s *Sessions) closeRoundLocked(ctx context.Context, id Identity, gameID, roundID uint, reason string) (Round, error) {
	round, err := s.repo.GetRound(ctx, roundID)
	if err != nil {
		return Round{}, err
	}
	if round.GameID != gameID {
		return Round{}, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	switch round.State {
	case RoundClosed:
		return round, nil
	case RoundPending:
		return Round{}, fmt.Errorf("%w: round %d is pending", ErrInvalidTransition, round.Number)
	}

	now := s.opts.Clock.Now()
	round.State = RoundClosed
	round.EndsAt = &now
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := tx.UpdateRound(ctx, round); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, roundEvent(id, round, "round_closed", reason))
	})
	if err != nil {
		return Round{}, err
	}
	s.registry.CancelRound(gameID, roundID)
	s.opts.Broadcaster.Publish(gameID, EventRoundEnded, RoundPayload{
		RoundID:     round.ID,
		RoundNumber: round.Number,
		Reason:      reason,
	})
	log.Printf("round closed game_id=%d round_id=%d reason=%s", gameID, roundID, reason)
	return round, nil
}

func (s *Sessions) EndGame(ctx context.Context, id Identity, gameID uint) (Game, error) {
	if err := requireOperator(id); err != nil {
		return Game{}, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Game{}, err
	}
	if g.State != GameInProgress {
		return Game{}, fmt.Errorf("%w: cannot end a game that is %s", ErrInvalidTransition, g.State)
	}
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := tx.UpdateGameState(ctx, gameID, GameEnded); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, Event{
			GameID:  gameID,
			UserID:  userRef(id),
			Type:    "game_ended",
			Payload: EventPayload{State: string(GameEnded)},
		})
	})
	if err != nil {
		return Game{}, err
	}
	s.registry.Cancel(gameID)
	g.State = GameEnded
	s.opts.Broadcaster.Publish(gameID, EventGameEnded, map[string]any{"game_id": gameID})
	log.Printf("game ended game_id=%d", gameID)
	return g, nil
}

func (s *Sessions) expiryHandler(c *RoundClock) func(Round) {
	return func(round Round) {
		s.registry.Remove(round.GameID, c)
		s.autoClose(round)
	}
}

// autoClose closes an expired round, retrying on the tick interval when
// persistence fails. The clock itself is never re-armed.
func (s *Sessions) autoClose(round Round) {
	var ticker clock.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for attempt := 1; ; attempt++ {
		err := s.closeExpired(round)
		if err == nil {
			return
		}
		log.Printf("round auto-close failed game_id=%d round_id=%d attempt=%d error=%v", round.GameID, round.ID, attempt, err)
		if attempt >= s.opts.AutoCloseAttempts {
			log.Printf("round auto-close abandoned game_id=%d round_id=%d", round.GameID, round.ID)
			return
		}
		if ticker == nil {
			ticker = s.opts.Clock.NewTicker(s.opts.TickInterval)
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

func (s *Sessions) closeExpired(round Round) error {
	unlock := s.registry.Lock(round.GameID)
	defer unlock()
	_, err := s.closeRoundLocked(s.ctx, Identity{}, round.GameID, round.ID, "timeout")
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

func requireOperator(id Identity) error {
	if id.UserID == 0 {
		return ErrUnauthenticated
	}
	if !id.IsOperator() {
		return fmt.Errorf("%w: operator role required", ErrForbidden)
	}
	return nil
}

func requireIdentity(id Identity) error {
	if id.UserID == 0 {
		return ErrUnauthenticated
	}
	return nil
}

func roundByNumber(rounds []Round, number int) *Round {
	for i := range rounds {
		if rounds[i].Number == number {
			return &rounds[i]
		}
	}
	return nil
}

func roundEvent(id Identity, round Round, eventType, reason string) Event {
	roundID := round.ID
	return Event{
		GameID:  round.GameID,
		RoundID: &roundID,
		UserID:  userRef(id),
		Type:    eventType,
		Payload: EventPayload{RoundNumber: round.Number, State: string(round.State), Reason: reason},
	}
}

func userRef(id Identity) *uint {
	if id.UserID == 0 {
		return nil
	}
	userID := id.UserID
	return &userID
}
