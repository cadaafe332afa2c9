package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package is a bandwidth plan. Its name matches a router PPP profile.
type Package struct {
	ID        uint            `gorm:"column:id;primaryKey" json:"id"`
	Name      string          `gorm:"column:name;uniqueIndex;size:100;not null" json:"name"`
	RateLimit string          `gorm:"column:rate_limit;size:50;index" json:"rate_limit"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(15,2);default:0" json:"price"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Package) TableName() string {
	return "packages"
}

// PackageCount is one row of the per-package subscriber breakdown.
type PackageCount struct {
	Package string `json:"package"`
	Count   int64  `json:"count"`
}
