package store

import (
	"context"
	"time"

	"econ-empire/internal/game"
)

// txView is the Repository handed to InTx callbacks. The store lock is held
// for its whole lifetime, so it touches the draft state directly.
type txView struct {
	st  *state
	now func() time.Time
}

func (t *txView) InTx(ctx context.Context, fn func(tx game.Repository) error) error {
	return fn(t)
}

func (t *txView) ListCountries(ctx context.Context) ([]game.Country, error) {
	return t.st.listCountries()
}

func (t *txView) ListProducts(ctx context.Context) ([]game.Product, error) {
	return t.st.listProducts()
}

func (t *txView) CreateGame(ctx context.Context, g *game.Game) error {
	return t.st.createGame(g, t.now())
}

func (t *txView) GetGame(ctx context.Context, id uint) (game.Game, error) {
	return t.st.getGame(id)
}

func (t *txView) UpdateGameState(ctx context.Context, id uint, gs game.GameState) error {
	return t.st.updateGameState(id, gs)
}

func (t *txView) DeleteGame(ctx context.Context, id uint) error {
	return t.st.deleteGame(id)
}

func (t *txView) CreateRound(ctx context.Context, r *game.Round) error {
	return t.st.createRound(r)
}

func (t *txView) GetRound(ctx context.Context, id uint) (game.Round, error) {
	return t.st.getRound(id)
}

func (t *txView) ListRounds(ctx context.Context, gameID uint) ([]game.Round, error) {
	return t.st.listRounds(gameID)
}

func (t *txView) UpdateRound(ctx context.Context, r game.Round) error {
	return t.st.updateRound(r)
}

func (t *txView) GetAssignment(ctx context.Context, gameID, userID uint) (game.Assignment, error) {
	return t.st.getAssignment(gameID, userID)
}

func (t *txView) ListAssignments(ctx context.Context, gameID uint) ([]game.Assignment, error) {
	return t.st.listAssignments(gameID)
}

func (t *txView) CreateAssignment(ctx context.Context, a game.Assignment) error {
	return t.st.createAssignment(a)
}

func (t *txView) CreateProduction(ctx context.Context, rows []game.Quantity) error {
	return t.st.createQuantities(&t.st.production, rows)
}

func (t *txView) CreateDemand(ctx context.Context, rows []game.Quantity) error {
	return t.st.createQuantities(&t.st.demand, rows)
}

func (t *txView) ListProduction(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	return filterQuantities(t.st.production, gameID), nil
}

func (t *txView) ListDemand(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	return filterQuantities(t.st.demand, gameID), nil
}

func (t *txView) UpsertTariffRate(ctx context.Context, rate game.TariffRate) error {
	return t.st.upsertTariff(rate, t.now())
}

func (t *txView) ListTariffRates(ctx context.Context, filter game.TariffFilter) ([]game.TariffRate, error) {
	return t.st.listTariffs(filter), nil
}

func (t *txView) CreateChatMessage(ctx context.Context, msg *game.ChatMessage) error {
	return t.st.createChat(msg, t.now())
}

func (t *txView) ListChatMessages(ctx context.Context, gameID uint, since time.Time) ([]game.ChatMessage, error) {
	return t.st.listChat(gameID, since), nil
}

func (t *txView) RecordEvent(ctx context.Context, event game.Event) error {
	t.st.events = append(t.st.events, event)
	return nil
}
