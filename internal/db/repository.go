package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"econ-empire/internal/game"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed game.Repository.
type Repository struct {
	conn *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{conn: conn}
}

func (r *Repository) InTx(ctx context.Context, fn func(tx game.Repository) error) error {
	return r.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{conn: tx})
	})
}

func (r *Repository) db(ctx context.Context) *gorm.DB {
	return r.conn.WithContext(ctx)
}

func (r *Repository) ListCountries(ctx context.Context) ([]game.Country, error) {
	var records []Country
	if err := r.db(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Country, 0, len(records))
	for _, rec := range records {
		out = append(out, game.Country{ID: rec.ID, Code: rec.Code, Name: rec.Name})
	}
	return out, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]game.Product, error) {
	var records []Product
	if err := r.db(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Product, 0, len(records))
	for _, rec := range records {
		out = append(out, game.Product{ID: rec.ID, Code: rec.Code, Name: rec.Name})
	}
	return out, nil
}

func (r *Repository) CreateGame(ctx context.Context, g *game.Game) error {
	record := Game{
		TotalRounds:          g.TotalRounds,
		RoundDurationSeconds: g.RoundDurationSeconds,
		State:                string(g.State),
		CreatedAt:            g.CreatedAt,
	}
	if err := r.db(ctx).Create(&record).Error; err != nil {
		return translate(err)
	}
	g.ID = record.ID
	g.CreatedAt = record.CreatedAt
	return nil
}

func (r *Repository) GetGame(ctx context.Context, id uint) (game.Game, error) {
	var record Game
	if err := r.db(ctx).First(&record, id).Error; err != nil {
		return game.Game{}, fmt.Errorf("game %d: %w", id, translate(err))
	}
	return toGame(record), nil
}

func (r *Repository) UpdateGameState(ctx context.Context, id uint, state game.GameState) error {
	res := r.db(ctx).Model(&Game{}).Where("id = ?", id).Update("state", string(state))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("game %d: %w", id, game.ErrNotFound)
	}
	return nil
}

// DeleteGame removes the game and its dependent rows, children first. Run it
// inside InTx to make the removal atomic.
func (r *Repository) DeleteGame(ctx context.Context, id uint) error {
	conn := r.db(ctx)
	for _, model := range []any{&Event{}, &ChatMessage{}, &TariffRate{}, &Demand{}, &Production{}, &CountryAssignment{}, &Round{}} {
		if err := conn.Where("game_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	res := conn.Delete(&Game{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("game %d: %w", id, game.ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateRound(ctx context.Context, round *game.Round) error {
	record := Round{
		GameID:   round.GameID,
		Number:   round.Number,
		State:    string(round.State),
		StartsAt: round.StartsAt,
		EndsAt:   round.EndsAt,
	}
	if err := r.db(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("round %d: %w", round.Number, translate(err))
	}
	round.ID = record.ID
	return nil
}

func (r *Repository) GetRound(ctx context.Context, id uint) (game.Round, error) {
	var record Round
	if err := r.db(ctx).First(&record, id).Error; err != nil {
		return game.Round{}, fmt.Errorf("round %d: %w", id, translate(err))
	}
	return toRound(record), nil
}

func (r *Repository) ListRounds(ctx context.Context, gameID uint) ([]game.Round, error) {
	var records []Round
	if err := r.db(ctx).Where("game_id = ?", gameID).Order("number").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Round, 0, len(records))
	for _, rec := range records {
		out = append(out, toRound(rec))
	}
	return out, nil
}

func (r *Repository) UpdateRound(ctx context.Context, round game.Round) error {
	res := r.db(ctx).Model(&Round{}).Where("id = ?", round.ID).Updates(map[string]any{
		"state":     string(round.State),
		"starts_at": round.StartsAt,
		"ends_at":   round.EndsAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("round %d: %w", round.ID, game.ErrNotFound)
	}
	return nil
}

func (r *Repository) GetAssignment(ctx context.Context, gameID, userID uint) (game.Assignment, error) {
	var record CountryAssignment
	err := r.db(ctx).Where("game_id = ? AND user_id = ?", gameID, userID).First(&record).Error
	if err != nil {
		return game.Assignment{}, fmt.Errorf("assignment for user %d: %w", userID, translate(err))
	}
	return game.Assignment{GameID: record.GameID, UserID: record.UserID, CountryID: record.CountryID}, nil
}

func (r *Repository) ListAssignments(ctx context.Context, gameID uint) ([]game.Assignment, error) {
	var records []CountryAssignment
	if err := r.db(ctx).Where("game_id = ?", gameID).Order("country_id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Assignment, 0, len(records))
	for _, rec := range records {
		out = append(out, game.Assignment{GameID: rec.GameID, UserID: rec.UserID, CountryID: rec.CountryID})
	}
	return out, nil
}

func (r *Repository) CreateAssignment(ctx context.Context, a game.Assignment) error {
	record := CountryAssignment{GameID: a.GameID, UserID: a.UserID, CountryID: a.CountryID}
	if err := r.db(ctx).Create(&record).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *Repository) CreateProduction(ctx context.Context, rows []game.Quantity) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]Production, 0, len(rows))
	for _, row := range rows {
		records = append(records, Production{GameID: row.GameID, ProductID: row.ProductID, CountryID: row.CountryID, Quantity: row.Quantity})
	}
	return translate(r.db(ctx).Create(&records).Error)
}

func (r *Repository) CreateDemand(ctx context.Context, rows []game.Quantity) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]Demand, 0, len(rows))
	for _, row := range rows {
		records = append(records, Demand{GameID: row.GameID, ProductID: row.ProductID, CountryID: row.CountryID, Quantity: row.Quantity})
	}
	return translate(r.db(ctx).Create(&records).Error)
}

func (r *Repository) ListProduction(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	var records []Production
	if err := r.db(ctx).Where("game_id = ?", gameID).Order("product_id, country_id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Quantity, 0, len(records))
	for _, rec := range records {
		out = append(out, game.Quantity{GameID: rec.GameID, ProductID: rec.ProductID, CountryID: rec.CountryID, Quantity: rec.Quantity})
	}
	return out, nil
}

func (r *Repository) ListDemand(ctx context.Context, gameID uint) ([]game.Quantity, error) {
	var records []Demand
	if err := r.db(ctx).Where("game_id = ?", gameID).Order("product_id, country_id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.Quantity, 0, len(records))
	for _, rec := range records {
		out = append(out, game.Quantity{GameID: rec.GameID, ProductID: rec.ProductID, CountryID: rec.CountryID, Quantity: rec.Quantity})
	}
	return out, nil
}

// UpsertTariffRate writes the rate for its five-part key, replacing any
// earlier value.
func (r *Repository) UpsertTariffRate(ctx context.Context, rate game.TariffRate) error {
	record := TariffRate{
		GameID:        rate.GameID,
		RoundID:       rate.RoundID,
		ProductID:     rate.ProductID,
		FromCountryID: rate.FromCountryID,
		ToCountryID:   rate.ToCountryID,
		RatePercent:   rate.RatePercent,
		UpdatedAt:     time.Now().UTC(),
	}
	return r.db(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "game_id"},
			{Name: "round_id"},
			{Name: "product_id"},
			{Name: "from_country_id"},
			{Name: "to_country_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"rate_percent", "updated_at"}),
	}).Create(&record).Error
}

func (r *Repository) ListTariffRates(ctx context.Context, filter game.TariffFilter) ([]game.TariffRate, error) {
	query := r.db(ctx).Model(&TariffRate{})
	if filter.GameID != 0 {
		query = query.Where("game_id = ?", filter.GameID)
	}
	if filter.RoundID != 0 {
		query = query.Where("round_id = ?", filter.RoundID)
	}
	if filter.ProductID != 0 {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.FromCountryID != 0 {
		query = query.Where("from_country_id = ?", filter.FromCountryID)
	}
	if filter.ToCountryID != 0 {
		query = query.Where("to_country_id = ?", filter.ToCountryID)
	}
	var records []TariffRate
	if err := query.Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.TariffRate, 0, len(records))
	for _, rec := range records {
		out = append(out, game.TariffRate{
			GameID:        rec.GameID,
			RoundID:       rec.RoundID,
			ProductID:     rec.ProductID,
			FromCountryID: rec.FromCountryID,
			ToCountryID:   rec.ToCountryID,
			RatePercent:   rec.RatePercent,
			UpdatedAt:     rec.UpdatedAt,
		})
	}
	return out, nil
}

func (r *Repository) CreateChatMessage(ctx context.Context, msg *game.ChatMessage) error {
	record := ChatMessage{
		GameID:       msg.GameID,
		SenderUserID: msg.SenderUserID,
		ToCountryID:  msg.ToCountryID,
		Content:      msg.Content,
		CreatedAt:    msg.CreatedAt,
	}
	if err := r.db(ctx).Create(&record).Error; err != nil {
		return err
	}
	msg.ID = record.ID
	msg.CreatedAt = record.CreatedAt
	return nil
}

func (r *Repository) ListChatMessages(ctx context.Context, gameID uint, since time.Time) ([]game.ChatMessage, error) {
	query := r.db(ctx).Where("game_id = ?", gameID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	var records []ChatMessage
	if err := query.Order("created_at, id").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]game.ChatMessage, 0, len(records))
	for _, rec := range records {
		out = append(out, game.ChatMessage{
			ID:           rec.ID,
			GameID:       rec.GameID,
			SenderUserID: rec.SenderUserID,
			ToCountryID:  rec.ToCountryID,
			Content:      rec.Content,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return out, nil
}

func (r *Repository) RecordEvent(ctx context.Context, event game.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	record := Event{
		GameID:  event.GameID,
		RoundID: event.RoundID,
		UserID:  event.UserID,
		Type:    event.Type,
		Payload: datatypes.JSON(payload),
	}
	return r.db(ctx).Create(&record).Error
}

// ListEvents returns the game's audit log, oldest first.
func (r *Repository) ListEvents(ctx context.Context, gameID uint) ([]Event, error) {
	var records []Event
	if err := r.db(ctx).Where("game_id = ?", gameID).Order("id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func toGame(rec Game) game.Game {
	return game.Game{
		ID:                   rec.ID,
		TotalRounds:          rec.TotalRounds,
		RoundDurationSeconds: rec.RoundDurationSeconds,
		State:                game.GameState(rec.State),
		CreatedAt:            rec.CreatedAt,
	}
}

func toRound(rec Round) game.Round {
	return game.Round{
		ID:       rec.ID,
		GameID:   rec.GameID,
		Number:   rec.Number,
		State:    game.RoundState(rec.State),
		StartsAt: rec.StartsAt,
		EndsAt:   rec.EndsAt,
	}
}

// translate maps driver errors onto the game package's error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return game.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", game.ErrConflict, err)
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
