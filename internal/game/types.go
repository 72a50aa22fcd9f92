package game

import "time"

type GameState string

const (
	GameLobby      GameState = "lobby"
	GameInProgress GameState = "in_progress"
	GameEnded      GameState = "ended"
)

type RoundState string

const (
	RoundPending RoundState = "pending"
	RoundActive  RoundState = "active"
	RoundClosed  RoundState = "closed"
)

type Role string

const (
	RoleOperator Role = "operator"
	RolePlayer   Role = "player"
)

const (
	MinTotalRounds     = 1
	MaxTotalRounds     = 50
	MinRoundSeconds    = 60
	MaxRoundSeconds    = 7200
	MinRatePercent     = 0
	MaxRatePercent     = 100
	SeedQuantity       = 100
	MinProducers       = 2
	MaxProducers       = 3
	MaxChatMessageSize = 5000
)

// Identity is the already-authenticated caller of a mutating operation.
type Identity struct {
	UserID uint
	Role   Role
}

func (i Identity) IsOperator() bool {
	return i.Role == RoleOperator
}

type Country struct {
	ID   uint   `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Product struct {
	ID   uint   `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Game struct {
	ID                   uint      `json:"id"`
	TotalRounds          int       `json:"total_rounds"`
	RoundDurationSeconds int       `json:"round_duration_seconds"`
	State                GameState `json:"state"`
	CreatedAt            time.Time `json:"created_at"`
}

func (g Game) RoundDuration() time.Duration {
	return time.Duration(g.RoundDurationSeconds) * time.Second
}

type Round struct {
	ID       uint       `json:"id"`
	GameID   uint       `json:"game_id"`
	Number   int        `json:"round_number"`
	State    RoundState `json:"state"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

type Assignment struct {
	GameID    uint `json:"game_id"`
	UserID    uint `json:"user_id"`
	CountryID uint `json:"country_id"`
}

// Quantity is one Production or Demand row.
type Quantity struct {
	GameID    uint `json:"game_id"`
	ProductID uint `json:"product_id"`
	CountryID uint `json:"country_id"`
	Quantity  int  `json:"quantity"`
}

type TariffRate struct {
	GameID        uint      `json:"game_id"`
	RoundID       uint      `json:"round_id"`
	ProductID     uint      `json:"product_id"`
	FromCountryID uint      `json:"from_country_id"`
	ToCountryID   uint      `json:"to_country_id"`
	RatePercent   int       `json:"rate_percent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type TariffFilter struct {
	GameID        uint
	RoundID       uint
	ProductID     uint
	FromCountryID uint
	ToCountryID   uint
}

type TariffItem struct {
	ProductCode   string `json:"product_code"`
	ToCountryCode string `json:"to_country_code"`
	RatePercent   int    `json:"rate_percent"`
}

type TariffChange struct {
	Product  string `json:"product"`
	From     string `json:"from_country"`
	To       string `json:"to_country"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
}

type ChatMessage struct {
	ID           uint      `json:"id"`
	GameID       uint      `json:"game_id"`
	SenderUserID uint      `json:"sender_user_id"`
	ToCountryID  *uint     `json:"to_country_id,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event is an audit log entry appended alongside lifecycle mutations.
type Event struct {
	GameID  uint
	RoundID *uint
	UserID  *uint
	Type    string
	Payload EventPayload
}

type EventPayload struct {
	RoundNumber  int          `json:"round_number,omitempty"`
	State        string       `json:"state,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Country      string       `json:"country,omitempty"`
	TotalRounds  int          `json:"total_rounds,omitempty"`
	DurationSecs int          `json:"round_duration_seconds,omitempty"`
	Items        []TariffItem `json:"items,omitempty"`
	Count        int          `json:"count,omitempty"`
}
