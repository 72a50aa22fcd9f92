package game

import "strings"

// DefaultCountries and DefaultProducts are the reference data used when no
// reference file is supplied.
func DefaultCountries() []Country {
	return []Country{
		{Code: "USA", Name: "USA"},
		{Code: "CHN", Name: "China"},
		{Code: "DEU", Name: "Germany"},
		{Code: "JPN", Name: "Japan"},
		{Code: "IND", Name: "India"},
	}
}

func DefaultProducts() []Product {
	return []Product{
		{Code: "STEEL", Name: "Steel"},
		{Code: "GRAIN", Name: "Grain"},
		{Code: "OIL", Name: "Oil"},
		{Code: "ELEC", Name: "Electronics"},
		{Code: "TEXT", Name: "Textiles"},
	}
}

// NormalizeCode is the single matching rule for country and product codes:
// surrounding space is ignored and comparison is case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
