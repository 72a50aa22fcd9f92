package db

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"econ-empire/internal/game"

	"gorm.io/gorm"
)

type ReferenceData struct {
	Countries []game.Country
	Products  []game.Product
}

// DefaultReferenceData is the built-in country and product pool.
func DefaultReferenceData() ReferenceData {
	return ReferenceData{
		Countries: game.DefaultCountries(),
		Products:  game.DefaultProducts(),
	}
}

// LoadReferenceData upserts countries and products by code. It returns how
// many rows were written.
func LoadReferenceData(conn *gorm.DB, data ReferenceData) (int, error) {
	if conn == nil {
		return 0, nil
	}
	loaded := 0
	err := conn.Transaction(func(tx *gorm.DB) error {
		for _, c := range data.Countries {
			entry := Country{Code: c.Code, Name: c.Name}
			if err := tx.Where(Country{Code: entry.Code}).Assign(Country{Name: entry.Name}).FirstOrCreate(&entry).Error; err != nil {
				return err
			}
			loaded++
		}
		for _, p := range data.Products {
			entry := Product{Code: p.Code, Name: p.Name}
			if err := tx.Where(Product{Code: entry.Code}).Assign(Product{Name: entry.Name}).FirstOrCreate(&entry).Error; err != nil {
				return err
			}
			loaded++
		}
		return nil
	})
	return loaded, err
}

// ReadReferenceCSV reads rows of kind,code,name where kind is country or
// product. The first row is a header.
func ReadReferenceCSV(path string) (ReferenceData, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReferenceData{}, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return ReferenceData{}, err
	}

	var data ReferenceData
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if len(row) < 3 {
			return ReferenceData{}, fmt.Errorf("line %d: expected kind,code,name", i+1)
		}
		kind := strings.ToLower(strings.TrimSpace(row[0]))
		code := strings.ToUpper(strings.TrimSpace(row[1]))
		name := strings.TrimSpace(row[2])
		if code == "" || name == "" {
			continue
		}
		switch kind {
		case "country":
			data.Countries = append(data.Countries, game.Country{Code: code, Name: name})
		case "product":
			data.Products = append(data.Products, game.Product{Code: code, Name: name})
		default:
			return ReferenceData{}, fmt.Errorf("line %d: unknown kind %q", i+1, kind)
		}
	}
	return data, nil
}
