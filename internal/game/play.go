package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

type Status struct {
	GameID      uint       `json:"game_id"`
	State       GameState  `json:"state"`
	TotalRounds int        `json:"total_rounds"`
	RoundNumber int        `json:"round_number,omitempty"`
	RoundID     uint       `json:"round_id,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

type Me struct {
	UserID  uint     `json:"user_id"`
	Role    Role     `json:"role"`
	Country *Country `json:"country,omitempty"`
}

type EconomyEntry struct {
	Product  string `json:"product"`
	Country  string `json:"country"`
	Quantity int    `json:"quantity"`
}

type Economy struct {
	GameID     uint           `json:"game_id"`
	Production []EconomyEntry `json:"production"`
	Demand     []EconomyEntry `json:"demand"`
}

type Dashboard struct {
	Game        Game         `json:"game"`
	Rounds      []Round      `json:"rounds"`
	Countries   []Country    `json:"countries"`
	Products    []Product    `json:"products"`
	Assignments []Assignment `json:"assignments"`
	Economy     Economy      `json:"economy"`
	Tariffs     []TariffRate `json:"tariffs"`
}

type ChatView struct {
	ID            uint      `json:"id"`
	SenderUserID  uint      `json:"sender_user_id"`
	SenderCountry string    `json:"sender_country,omitempty"`
	ToCountry     string    `json:"to_country,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

type TariffUpdate struct {
	RoundID uint         `json:"round_id"`
	Country string       `json:"country"`
	Updates []TariffItem `json:"updates"`
}

func (s *Sessions) Status(ctx context.Context, gameID uint) (Status, error) {
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Status{}, err
	}
	rounds, err := s.repo.ListRounds(ctx, gameID)
	if err != nil {
		return Status{}, err
	}
	out := Status{GameID: g.ID, State: g.State, TotalRounds: g.TotalRounds}
	for _, r := range rounds {
		if r.State == RoundActive {
			out.RoundNumber = r.Number
			out.RoundID = r.ID
			out.EndsAt = r.EndsAt
			break
		}
	}
	return out, nil
}

// AssignCountry gives the caller the lowest-id country not yet taken in
// the game. A caller that already holds a country gets it back.
func (s *Sessions) AssignCountry(ctx context.Context, id Identity, gameID uint) (Country, error) {
	if err := requireIdentity(id); err != nil {
		return Country{}, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()

	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Country{}, err
	}
	if g.State == GameEnded {
		return Country{}, ErrGameEnded
	}
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return Country{}, err
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].ID < countries[j].ID })

	if existing, err := s.repo.GetAssignment(ctx, gameID, id.UserID); err == nil {
		for _, c := range countries {
			if c.ID == existing.CountryID {
				return c, nil
			}
		}
		return Country{}, fmt.Errorf("country %d: %w", existing.CountryID, ErrNotFound)
	} else if !errors.Is(err, ErrNotFound) {
		return Country{}, err
	}

	assignments, err := s.repo.ListAssignments(ctx, gameID)
	if err != nil {
		return Country{}, err
	}
	taken := make(map[uint]struct{}, len(assignments))
	for _, a := range assignments {
		taken[a.CountryID] = struct{}{}
	}
	for _, c := range countries {
		if _, ok := taken[c.ID]; ok {
			continue
		}
		err := s.repo.InTx(ctx, func(tx Repository) error {
			if err := tx.CreateAssignment(ctx, Assignment{GameID: gameID, UserID: id.UserID, CountryID: c.ID}); err != nil {
				return err
			}
			return tx.RecordEvent(ctx, Event{
				GameID:  gameID,
				UserID:  userRef(id),
				Type:    "country_assigned",
				Payload: EventPayload{Country: c.Code},
			})
		})
		if err != nil {
			return Country{}, err
		}
		log.Printf("country assigned game_id=%d user_id=%d country=%s", gameID, id.UserID, c.Code)
		return c, nil
	}
	return Country{}, ErrNoAvailableCountries
}

func (s *Sessions) Me(ctx context.Context, id Identity, gameID uint) (Me, error) {
	if err := requireIdentity(id); err != nil {
		return Me{}, err
	}
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return Me{}, err
	}
	out := Me{UserID: id.UserID, Role: id.Role}
	country, err := s.countryOf(ctx, gameID, id.UserID)
	switch {
	case err == nil:
		out.Country = &country
	case !errors.Is(err, ErrNotAssigned):
		return Me{}, err
	}
	return out, nil
}

func (s *Sessions) Economy(ctx context.Context, gameID uint) (Economy, error) {
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return Economy{}, err
	}
	countryCodes, productCodes, err := s.ledger.codes(ctx)
	if err != nil {
		return Economy{}, err
	}
	production, err := s.repo.ListProduction(ctx, gameID)
	if err != nil {
		return Economy{}, err
	}
	demand, err := s.repo.ListDemand(ctx, gameID)
	if err != nil {
		return Economy{}, err
	}
	return Economy{
		GameID:     gameID,
		Production: economyEntries(production, countryCodes, productCodes),
		Demand:     economyEntries(demand, countryCodes, productCodes),
	}, nil
}

func economyEntries(rows []Quantity, countryCodes, productCodes map[uint]string) []EconomyEntry {
	out := make([]EconomyEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, EconomyEntry{
			Product:  productCodes[row.ProductID],
			Country:  countryCodes[row.CountryID],
			Quantity: row.Quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Product != out[j].Product {
			return out[i].Product < out[j].Product
		}
		return out[i].Country < out[j].Country
	})
	return out
}

func (s *Sessions) Dashboard(ctx context.Context, id Identity, gameID uint) (Dashboard, error) {
	if err := requireOperator(id); err != nil {
		return Dashboard{}, err
	}
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return Dashboard{}, err
	}
	rounds, err := s.repo.ListRounds(ctx, gameID)
	if err != nil {
		return Dashboard{}, err
	}
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	assignments, err := s.repo.ListAssignments(ctx, gameID)
	if err != nil {
		return Dashboard{}, err
	}
	economy, err := s.Economy(ctx, gameID)
	if err != nil {
		return Dashboard{}, err
	}
	tariffs, err := s.repo.ListTariffRates(ctx, TariffFilter{GameID: gameID})
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Game:        g,
		Rounds:      rounds,
		Countries:   countries,
		Products:    products,
		Assignments: assignments,
		Economy:     economy,
		Tariffs:     tariffs,
	}, nil
}

// SubmitTariffs applies the caller's tariff batch for an active round on
// behalf of the caller's assigned country.
func (s *Sessions) SubmitTariffs(ctx context.Context, id Identity, gameID, roundID uint, items []TariffItem) ([]TariffRate, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	unlock := s.registry.Lock(gameID)
	defer unlock()

	round, err := s.repo.GetRound(ctx, roundID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil || round.GameID != gameID || round.State != RoundActive {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotActive, roundID)
	}
	country, err := s.countryOf(ctx, gameID, id.UserID)
	if err != nil {
		return nil, err
	}
	rates, err := s.ledger.Submit(ctx, gameID, roundID, country.ID, items)
	if err != nil {
		return nil, err
	}
	s.opts.Broadcaster.Publish(gameID, EventTariffsUpdated, TariffUpdate{
		RoundID: roundID,
		Country: country.Code,
		Updates: items,
	})
	log.Printf("tariffs submitted game_id=%d round_id=%d country=%s count=%d", gameID, roundID, country.Code, len(rates))
	return rates, nil
}

func (s *Sessions) TariffMatrix(ctx context.Context, id Identity, gameID uint, roundNumber int, productCode string) (Matrix, error) {
	if err := requireOperator(id); err != nil {
		return Matrix{}, err
	}
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return Matrix{}, err
	}
	return s.ledger.Matrix(ctx, gameID, roundNumber, productCode)
}

func (s *Sessions) TariffChanges(ctx context.Context, id Identity, gameID uint, roundNumber int) ([]TariffChange, error) {
	if err := requireOperator(id); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.ledger.Diff(ctx, gameID, roundNumber)
}

// PostChat stores a message from the caller's country, optionally
// addressed to one other country, and broadcasts it to the game.
func (s *Sessions) PostChat(ctx context.Context, id Identity, gameID uint, content, toCountryCode string) (ChatView, error) {
	if err := requireIdentity(id); err != nil {
		return ChatView{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > MaxChatMessageSize {
		return ChatView{}, fmt.Errorf("%w: message must be 1 to %d characters", ErrInvalidInput, MaxChatMessageSize)
	}
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return ChatView{}, err
	}
	sender, err := s.countryOf(ctx, gameID, id.UserID)
	if err != nil && !(id.IsOperator() && errors.Is(err, ErrNotAssigned)) {
		return ChatView{}, err
	}
	msg := ChatMessage{
		GameID:       gameID,
		SenderUserID: id.UserID,
		Content:      content,
		CreatedAt:    s.opts.Clock.Now(),
	}
	var to Country
	if toCountryCode != "" {
		to, err = s.countryByCode(ctx, toCountryCode)
		if err != nil {
			return ChatView{}, err
		}
		msg.ToCountryID = &to.ID
	}
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := tx.CreateChatMessage(ctx, &msg); err != nil {
			return err
		}
		return tx.RecordEvent(ctx, Event{
			GameID:  gameID,
			UserID:  userRef(id),
			Type:    "chat_posted",
			Payload: EventPayload{Country: to.Code},
		})
	})
	if err != nil {
		return ChatView{}, err
	}
	view := ChatView{
		ID:            msg.ID,
		SenderUserID:  msg.SenderUserID,
		SenderCountry: sender.Code,
		ToCountry:     to.Code,
		Content:       msg.Content,
		CreatedAt:     msg.CreatedAt,
	}
	s.opts.Broadcaster.Publish(gameID, EventChatMessage, view)
	return view, nil
}

// ListChat returns the game's messages created after since, oldest first.
func (s *Sessions) ListChat(ctx context.Context, gameID uint, since time.Time) ([]ChatView, error) {
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListChatMessages(ctx, gameID, since)
	if err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAssignments(ctx, gameID)
	if err != nil {
		return nil, err
	}
	countryCodes, _, err := s.ledger.codes(ctx)
	if err != nil {
		return nil, err
	}
	senderCountry := make(map[uint]string, len(assignments))
	for _, a := range assignments {
		senderCountry[a.UserID] = countryCodes[a.CountryID]
	}
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	out := make([]ChatView, 0, len(messages))
	for _, msg := range messages {
		view := ChatView{
			ID:            msg.ID,
			SenderUserID:  msg.SenderUserID,
			SenderCountry: senderCountry[msg.SenderUserID],
			Content:       msg.Content,
			CreatedAt:     msg.CreatedAt,
		}
		if msg.ToCountryID != nil {
			view.ToCountry = countryCodes[*msg.ToCountryID]
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Sessions) countryOf(ctx context.Context, gameID, userID uint) (Country, error) {
	a, err := s.repo.GetAssignment(ctx, gameID, userID)
	if errors.Is(err, ErrNotFound) {
		return Country{}, ErrNotAssigned
	}
	if err != nil {
		return Country{}, err
	}
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return Country{}, err
	}
	for _, c := range countries {
		if c.ID == a.CountryID {
			return c, nil
		}
	}
	return Country{}, fmt.Errorf("country %d: %w", a.CountryID, ErrNotFound)
}

func (s *Sessions) countryByCode(ctx context.Context, code string) (Country, error) {
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return Country{}, err
	}
	for _, c := range countries {
		if NormalizeCode(c.Code) == NormalizeCode(code) {
			return c, nil
		}
	}
	return Country{}, fmt.Errorf("%w: %q", ErrUnknownCountry, code)
}
