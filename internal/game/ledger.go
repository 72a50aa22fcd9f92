package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Ledger records tariff submissions per round and compares rounds.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

type Matrix struct {
	RoundNumber int      `json:"round_number"`
	Product     string   `json:"product"`
	Countries   []string `json:"countries"`
	Rates       [][]int  `json:"rates"`
}

type tariffKey struct {
	productID uint
	fromID    uint
	toID      uint
}

// Submit validates every item and upserts the whole batch in one
// transaction. Any invalid item rejects the batch.
func (l *Ledger) Submit(ctx context.Context, gameID, roundID, actingCountryID uint, items []TariffItem) ([]TariffRate, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one tariff item is required", ErrInvalidInput)
	}
	var written []TariffRate
	err := l.repo.InTx(ctx, func(tx Repository) error {
		g, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		switch g.State {
		case GameEnded:
			return fmt.Errorf("%w: game %d", ErrGameEnded, gameID)
		case GameLobby:
			return fmt.Errorf("%w: round %d", ErrRoundNotActive, roundID)
		}
		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: round %d", ErrRoundNotActive, roundID)
			}
			return err
		}
		if round.GameID != gameID || round.State != RoundActive {
			return fmt.Errorf("%w: round %d", ErrRoundNotActive, roundID)
		}

		countries, err := tx.ListCountries(ctx)
		if err != nil {
			return err
		}
		products, err := tx.ListProducts(ctx)
		if err != nil {
			return err
		}
		production, err := tx.ListProduction(ctx, gameID)
		if err != nil {
			return err
		}
		countryByCode := make(map[string]Country, len(countries))
		for _, c := range countries {
			countryByCode[NormalizeCode(c.Code)] = c
		}
		productByCode := make(map[string]Product, len(products))
		for _, p := range products {
			productByCode[NormalizeCode(p.Code)] = p
		}
		produced := make(map[uint]struct{})
		for _, row := range production {
			if row.CountryID == actingCountryID {
				produced[row.ProductID] = struct{}{}
			}
		}

		rates := make([]TariffRate, 0, len(items))
		for _, item := range items {
			to, ok := countryByCode[NormalizeCode(item.ToCountryCode)]
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownCountry, item.ToCountryCode)
			}
			product, ok := productByCode[NormalizeCode(item.ProductCode)]
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownProduct, item.ProductCode)
			}
			if to.ID == actingCountryID {
				return fmt.Errorf("%w: %s", ErrSelfTariff, to.Code)
			}
			if _, ok := produced[product.ID]; !ok {
				return fmt.Errorf("%w: %s", ErrNotAProducer, product.Code)
			}
			if item.RatePercent < MinRatePercent || item.RatePercent > MaxRatePercent {
				return fmt.Errorf("%w: %d", ErrRateOutOfRange, item.RatePercent)
			}
			rates = append(rates, TariffRate{
				GameID:        gameID,
				RoundID:       roundID,
				ProductID:     product.ID,
				FromCountryID: actingCountryID,
				ToCountryID:   to.ID,
				RatePercent:   item.RatePercent,
			})
		}
		for _, rate := range rates {
			if err := tx.UpsertTariffRate(ctx, rate); err != nil {
				return err
			}
		}
		id := roundID
		if err := tx.RecordEvent(ctx, Event{
			GameID:  gameID,
			RoundID: &id,
			Type:    "tariffs_submitted",
			Payload: EventPayload{RoundNumber: round.Number, Items: items, Count: len(items)},
		}); err != nil {
			return err
		}
		written = rates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Matrix returns the from x to grid of rates for one product in one round.
// Missing cells and the diagonal are zero.
func (l *Ledger) Matrix(ctx context.Context, gameID uint, roundNumber int, productCode string) (Matrix, error) {
	round, _, err := l.roundPair(ctx, gameID, roundNumber)
	if err != nil {
		return Matrix{}, err
	}
	products, err := l.repo.ListProducts(ctx)
	if err != nil {
		return Matrix{}, err
	}
	var product *Product
	for i := range products {
		if NormalizeCode(products[i].Code) == NormalizeCode(productCode) {
			product = &products[i]
			break
		}
	}
	if product == nil {
		return Matrix{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productCode)
	}
	countries, err := l.repo.ListCountries(ctx)
	if err != nil {
		return Matrix{}, err
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].ID < countries[j].ID })
	rates, err := l.repo.ListTariffRates(ctx, TariffFilter{GameID: gameID, RoundID: round.ID, ProductID: product.ID})
	if err != nil {
		return Matrix{}, err
	}

	index := make(map[uint]int, len(countries))
	out := Matrix{
		RoundNumber: roundNumber,
		Product:     product.Code,
		Countries:   make([]string, len(countries)),
		Rates:       make([][]int, len(countries)),
	}
	for i, c := range countries {
		index[c.ID] = i
		out.Countries[i] = c.Code
		out.Rates[i] = make([]int, len(countries))
	}
	for _, rate := range rates {
		from, okFrom := index[rate.FromCountryID]
		to, okTo := index[rate.ToCountryID]
		if !okFrom || !okTo || from == to {
			continue
		}
		out.Rates[from][to] = rate.RatePercent
	}
	return out, nil
}

// Diff reports every key in roundNumber whose rate differs from the same
// key in the previous round. Absent previous rows count as zero.
func (l *Ledger) Diff(ctx context.Context, gameID uint, roundNumber int) ([]TariffChange, error) {
	round, prev, err := l.roundPair(ctx, gameID, roundNumber)
	if err != nil {
		return nil, err
	}
	current, err := l.repo.ListTariffRates(ctx, TariffFilter{GameID: gameID, RoundID: round.ID})
	if err != nil {
		return nil, err
	}
	before := make(map[tariffKey]int)
	if prev != nil {
		rows, err := l.repo.ListTariffRates(ctx, TariffFilter{GameID: gameID, RoundID: prev.ID})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			before[tariffKey{r.ProductID, r.FromCountryID, r.ToCountryID}] = r.RatePercent
		}
	}

	countryCodes, productCodes, err := l.codes(ctx)
	if err != nil {
		return nil, err
	}
	changes := make([]TariffChange, 0)
	for _, r := range current {
		previous := before[tariffKey{r.ProductID, r.FromCountryID, r.ToCountryID}]
		if previous == r.RatePercent {
			continue
		}
		changes = append(changes, TariffChange{
			Product:  productCodes[r.ProductID],
			From:     countryCodes[r.FromCountryID],
			To:       countryCodes[r.ToCountryID],
			Previous: previous,
			Current:  r.RatePercent,
		})
	}
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return changes, nil
}

func (l *Ledger) roundPair(ctx context.Context, gameID uint, roundNumber int) (Round, *Round, error) {
	if roundNumber < 1 {
		return Round{}, nil, fmt.Errorf("%w: round number must be positive", ErrInvalidInput)
	}
	rounds, err := l.repo.ListRounds(ctx, gameID)
	if err != nil {
		return Round{}, nil, err
	}
	var current, prev *Round
	for i := range rounds {
		switch rounds[i].Number {
		case roundNumber:
			current = &rounds[i]
		case roundNumber - 1:
			prev = &rounds[i]
		}
	}
	if current == nil {
		return Round{}, nil, fmt.Errorf("round %d: %w", roundNumber, ErrNotFound)
	}
	return *current, prev, nil
}

func (l *Ledger) codes(ctx context.Context) (map[uint]string, map[uint]string, error) {
	countries, err := l.repo.ListCountries(ctx)
	if err != nil {
		return nil, nil, err
	}
	products, err := l.repo.ListProducts(ctx)
	if err != nil {
		return nil, nil, err
	}
	countryCodes := make(map[uint]string, len(countries))
	for _, c := range countries {
		countryCodes[c.ID] = c.Code
	}
	productCodes := make(map[uint]string, len(products))
	for _, p := range products {
		productCodes[p.ID] = p.Code
	}
	return countryCodes, productCodes, nil
}
