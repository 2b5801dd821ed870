package models

import "github.com/shopspring/decimal"

// NewDecimal creates a decimal from a float64.
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// PositionSide is long or short.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)
