package game

import (
	"context"
	"fmt"
	"sort"
)

// Seeder generates the Production and Demand figures of a new game.
type Seeder struct {
	repo Repository
	rng  Rand
}

func NewSeeder(repo Repository, rng Rand) *Seeder {
	return &Seeder{repo: repo, rng: rng}
}

// CheckPool reports ErrSeedingFailed when the country pool cannot host the
// minimum producer count.
func CheckPool(countries []Country) error {
	if len(countries) < MinProducers {
		return fmt.Errorf("%w: %d countries, need at least %d", ErrSeedingFailed, len(countries), MinProducers)
	}
	return nil
}

// Seed writes Production and Demand for every product. Each product's rows
// commit in their own transaction.
func (s *Seeder) Seed(ctx context.Context, gameID uint) error {
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return err
	}
	if err := CheckPool(countries); err != nil {
		return err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return err
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].ID < countries[j].ID })
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	for _, product := range products {
		production, demand, err := s.plan(gameID, product, countries)
		if err != nil {
			return fmt.Errorf("%w: product %s: %v", ErrSeedingFailed, product.Code, err)
		}
		err = s.repo.InTx(ctx, func(tx Repository) error {
			if err := tx.CreateProduction(ctx, production); err != nil {
				return err
			}
			if len(demand) == 0 {
				return nil
			}
			return tx.CreateDemand(ctx, demand)
		})
		if err != nil {
			return fmt.Errorf("seed product %s: %w", product.Code, err)
		}
	}
	return nil
}

// Seeded reports whether every product has production rows for the game.
func (s *Seeder) Seeded(ctx context.Context, gameID uint) (bool, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return false, err
	}
	production, err := s.repo.ListProduction(ctx, gameID)
	if err != nil {
		return false, err
	}
	produced := make(map[uint]struct{}, len(products))
	for _, row := range production {
		produced[row.ProductID] = struct{}{}
	}
	for _, p := range products {
		if _, ok := produced[p.ID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Seeder) plan(gameID uint, product Product, countries []Country) ([]Quantity, []Quantity, error) {
	count := MinProducers + s.rng.Intn(MaxProducers-MinProducers+1)
	if count > len(countries) {
		count = len(countries)
	}
	picked := make(map[int]struct{}, count)
	for _, idx := range sampleDistinct(s.rng, len(countries), count) {
		picked[idx] = struct{}{}
	}
	producers := make([]Country, 0, count)
	others := make([]Country, 0, len(countries)-count)
	for i, country := range countries {
		if _, ok := picked[i]; ok {
			producers = append(producers, country)
		} else {
			others = append(others, country)
		}
	}

	shares, err := Partition(s.rng, SeedQuantity, len(producers))
	if err != nil {
		return nil, nil, err
	}
	production := make([]Quantity, 0, len(producers))
	for i, country := range producers {
		production = append(production, Quantity{
			GameID:    gameID,
			ProductID: product.ID,
			CountryID: country.ID,
			Quantity:  shares[i],
		})
	}
	if len(others) == 0 {
		return production, nil, nil
	}

	shares, err = Partition(s.rng, SeedQuantity, len(others))
	if err != nil {
		return nil, nil, err
	}
	demand := make([]Quantity, 0, len(others))
	for i, country := range others {
		demand = append(demand, Quantity{
			GameID:    gameID,
			ProductID: product.ID,
			CountryID: country.ID,
			Quantity:  shares[i],
		})
	}
	return production, demand, nil
}
