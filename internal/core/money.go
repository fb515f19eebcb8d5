// Package core provides the inventory domain: records, money, period
// filtering, aggregation and export.
//
// This file contains the fixed-point Money type. All arithmetic is decimal;
// rounding only happens in presentation helpers.
package core

import (
	"database/sql/driver"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount.
type Money struct {
	Amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{Amount: decimal.Zero}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{Amount: d}
}

// MoneyFromInt builds an amount from whole units.
func MoneyFromInt(units int64) Money {
	return Money{Amount: decimal.NewFromInt(units)}
}

// ParseMoney parses a decimal string. Both dot (12.34) and comma (12,34)
// decimal separators are accepted.
//
// Examples:
//
//	ParseMoney("12.34") -> 12.34
//	ParseMoney("12,34") -> 12.34
//	ParseMoney(" 7 ")   -> 7
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	return Money{Amount: d}, nil
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount)}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount.Sub(o.Amount)}
}

// Times multiplies the amount by a unit quantity.
func (m Money) Times(qty int64) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(qty))}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

// Cmp compares two amounts: -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.Amount.Cmp(o.Amount)
}

// Equal reports decimal equality (2.0 equals 2).
func (m Money) Equal(o Money) bool {
	return m.Amount.Equal(o.Amount)
}

// Fixed renders the amount with exactly two fractional digits, half away
// from zero, using a dot separator. It is the machine form used in exports.
func (m Money) Fixed() string {
	return m.Amount.StringFixed(2)
}

func (m Money) String() string {
	return m.Amount.String()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return m.Amount.MarshalJSON()
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Amount.UnmarshalJSON(data)
}

// Scan implements sql.Scanner. NULL decodes as zero.
func (m *Money) Scan(value any) error {
	if value == nil {
		m.Amount = decimal.Zero
		return nil
	}
	return m.Amount.Scan(value)
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.Amount.Value()
}
