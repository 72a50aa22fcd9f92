package game

import (
	"context"
	"time"
)

// Repository is the persistence collaborator. Implementations return
// ErrNotFound for missing rows and ErrConflict for unique-key violations.
type Repository interface {
	ListCountries(ctx context.Context) ([]Country, error)
	ListProducts(ctx context.Context) ([]Product, error)

	CreateGame(ctx context.Context, game *Game) error
	GetGame(ctx context.Context, id uint) (Game, error)
	UpdateGameState(ctx context.Context, id uint, state GameState) error
	// DeleteGame removes the game and every row that belongs to it.
	DeleteGame(ctx context.Context, id uint) error

	CreateRound(ctx context.Context, round *Round) error
	GetRound(ctx context.Context, id uint) (Round, error)
	ListRounds(ctx context.Context, gameID uint) ([]Round, error)
	UpdateRound(ctx context.Context, round Round) error

	GetAssignment(ctx context.Context, gameID, userID uint) (Assignment, error)
	ListAssignments(ctx context.Context, gameID uint) ([]Assignment, error)
	CreateAssignment(ctx context.Context, assignment Assignment) error

	CreateProduction(ctx context.Context, rows []Quantity) error
	CreateDemand(ctx context.Context, rows []Quantity) error
	ListProduction(ctx context.Context, gameID uint) ([]Quantity, error)
	ListDemand(ctx context.Context, gameID uint) ([]Quantity, error)

	UpsertTariffRate(ctx context.Context, rate TariffRate) error
	ListTariffRates(ctx context.Context, filter TariffFilter) ([]TariffRate, error)

	CreateChatMessage(ctx context.Context, msg *ChatMessage) error
	ListChatMessages(ctx context.Context, gameID uint, since time.Time) ([]ChatMessage, error)

	RecordEvent(ctx context.Context, event Event) error

	// InTx runs fn against a transactional view. Nothing fn writes is
	// visible to other readers unless fn returns nil.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}

// Broadcaster is the publish side of the realtime channel. Publish must not
// block on slow subscribers.
type Broadcaster interface {
	Publish(gameID uint, event string, payload any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(uint, string, any) {}

// NopBroadcaster discards every event.
func NopBroadcaster() Broadcaster {
	return nopBroadcaster{}
}

const (
	EventRoundStarted   = "round:started"
	EventRoundEnded     = "round:ended"
	EventTimerTick      = "timer:tick"
	EventTimerExpired   = "timer:expired"
	EventGameEnded      = "game:ended"
	EventTariffsUpdated = "tariffs:updated"
	EventChatMessage    = "chat:message"
)
