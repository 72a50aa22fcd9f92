package db

import (
	"time"

	"gorm.io/datatypes"
)

type Country struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:8;uniqueIndex;not null"`
	Name string `gorm:"size:64;not null"`
}

type Product struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:16;uniqueIndex;not null"`
	Name string `gorm:"size:64;not null"`
}

type Game struct {
	ID                   uint      `gorm:"primaryKey"`
	TotalRounds          int       `gorm:"not null"`
	RoundDurationSeconds int       `gorm:"not null"`
	State                string    `gorm:"size:32;not null"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
	Rounds               []Round
	Events               []Event
}

type Round struct {
	ID        uint       `gorm:"primaryKey"`
	GameID    uint       `gorm:"index;not null;uniqueIndex:idx_rounds_game_number"`
	Number    int        `gorm:"not null;uniqueIndex:idx_rounds_game_number"`
	State     string     `gorm:"size:32;not null"`
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type CountryAssignment struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"not null;uniqueIndex:idx_assignments_game_user;uniqueIndex:idx_assignments_game_country"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_assignments_game_user"`
	CountryID uint      `gorm:"not null;uniqueIndex:idx_assignments_game_country"`
	CreatedAt time.Time `gorm:"not null"`
}

type Production struct {
	ID        uint `gorm:"primaryKey"`
	GameID    uint `gorm:"not null;uniqueIndex:idx_production_key"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_production_key"`
	CountryID uint `gorm:"not null;uniqueIndex:idx_production_key"`
	Quantity  int  `gorm:"not null"`
}

func (Production) TableName() string {
	return "production"
}

type Demand struct {
	ID        uint `gorm:"primaryKey"`
	GameID    uint `gorm:"not null;uniqueIndex:idx_demand_key"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_demand_key"`
	CountryID uint `gorm:"not null;uniqueIndex:idx_demand_key"`
	Quantity  int  `gorm:"not null"`
}

func (Demand) TableName() string {
	return "demand"
}

type TariffRate struct {
	ID            uint      `gorm:"primaryKey"`
	GameID        uint      `gorm:"not null;uniqueIndex:idx_tariff_rates_key"`
	RoundID       uint      `gorm:"index;not null;uniqueIndex:idx_tariff_rates_key"`
	ProductID     uint      `gorm:"not null;uniqueIndex:idx_tariff_rates_key"`
	FromCountryID uint      `gorm:"not null;uniqueIndex:idx_tariff_rates_key"`
	ToCountryID   uint      `gorm:"not null;uniqueIndex:idx_tariff_rates_key"`
	RatePercent   int       `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

type ChatMessage struct {
	ID           uint      `gorm:"primaryKey"`
	GameID       uint      `gorm:"index;not null"`
	SenderUserID uint      `gorm:"not null"`
	ToCountryID  *uint     `gorm:"index"`
	Content      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    uint           `gorm:"index;not null"`
	RoundID   *uint          `gorm:"index"`
	UserID    *uint          `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
