package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxNameLength = 200

	// Prices must fit DECIMAL(19,4) so every store keeps them exactly.
	maxPriceScale = 4
)

var maxPrice = decimal.New(1, 15)

type (
	// InventoryRecord is one product line with purchase and sale quantities
	// and unit prices. LastSaleDate nil means the record was never sold.
	InventoryRecord struct {
		ID                string     `json:"id"`
		Name              string     `json:"name"`
		QuantityPurchased int64      `json:"quantityPurchased"`
		PurchasePrice     Money      `json:"purchasePrice"`
		SalePrice         Money      `json:"salePrice"`
		QuantitySold      int64      `json:"quantitySold"`
		LastSaleDate      *time.Time `json:"lastSaleDate,omitempty"`
		OwnerID           string     `json:"ownerId"`
	}

	// Owner is the authenticated identity that exclusively owns a set of records.
	Owner struct {
		ID          string    `json:"id"`
		Email       string    `json:"email"`
		DisplayName string    `json:"displayName"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// RecordInput carries the writable fields of a record. Nil fields are
	// "not provided": on create they default to zero, on update they are
	// left untouched.
	RecordInput struct {
		Name              *string    `json:"name,omitempty"`
		QuantityPurchased *int64     `json:"quantityPurchased,omitempty"`
		PurchasePrice     *Money     `json:"purchasePrice,omitempty"`
		SalePrice         *Money     `json:"salePrice,omitempty"`
		QuantitySold      *int64     `json:"quantitySold,omitempty"`
		LastSaleDate      *time.Time `json:"lastSaleDate,omitempty"`
	}
)

var (
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrNameTooLong      = errors.New("name too long (max 200 characters)")
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrPriceScale       = errors.New("price has more than 4 decimal places")
	ErrPriceTooLarge    = errors.New("price too large")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPeriod    = errors.New("invalid period")
)

// CurrentStock is purchased minus sold. It is not clamped and may be negative.
func (r InventoryRecord) CurrentStock() int64 {
	return r.QuantityPurchased - r.QuantitySold
}

// IndividualProfit is the per-unit margin.
func (r InventoryRecord) IndividualProfit() Money {
	return r.SalePrice.Sub(r.PurchasePrice)
}

// TotalProfit is the margin realised on sold units.
func (r InventoryRecord) TotalProfit() Money {
	return r.IndividualProfit().Times(r.QuantitySold)
}

// Revenue is sale price times units sold.
func (r InventoryRecord) Revenue() Money {
	return r.SalePrice.Times(r.QuantitySold)
}

// CostOfGoodsSold is purchase price times units sold.
func (r InventoryRecord) CostOfGoodsSold() Money {
	return r.PurchasePrice.Times(r.QuantitySold)
}

// AcquisitionCost is purchase price times units bought.
func (r InventoryRecord) AcquisitionCost() Money {
	return r.PurchasePrice.Times(r.QuantityPurchased)
}

// Record builds a complete record from the input. Every field that was not
// provided takes its zero value: empty name, zero quantities, zero prices
// and no sale date.
func (in RecordInput) Record() InventoryRecord {
	rec := InventoryRecord{
		PurchasePrice: Zero,
		SalePrice:     Zero,
	}
	in.ApplyTo(&rec)
	return rec
}

// ApplyTo overwrites the fields of rec that are present in the input.
func (in RecordInput) ApplyTo(rec *InventoryRecord) {
	if in.Name != nil {
		rec.Name = strings.TrimSpace(*in.Name)
	}
	if in.QuantityPurchased != nil {
		rec.QuantityPurchased = *in.QuantityPurchased
	}
	if in.PurchasePrice != nil {
		rec.PurchasePrice = *in.PurchasePrice
	}
	if in.SalePrice != nil {
		rec.SalePrice = *in.SalePrice
	}
	if in.QuantitySold != nil {
		rec.QuantitySold = *in.QuantitySold
	}
	if in.LastSaleDate != nil {
		t := *in.LastSaleDate
		rec.LastSaleDate = &t
	}
}

// ValidateCreate checks an input meant for a new record. The name is required.
func (in RecordInput) ValidateCreate() error {
	ve := &ValidationError{}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		ve.Add("name", ErrEmptyName)
	}
	in.validateFields(ve)
	return ve.OrNil()
}

// ValidateUpdate checks a partial input. Only provided fields are checked,
// but a provided name must not be blank.
func (in RecordInput) ValidateUpdate() error {
	ve := &ValidationError{}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		ve.Add("name", ErrEmptyName)
	}
	in.validateFields(ve)
	return ve.OrNil()
}

func (in RecordInput) validateFields(ve *ValidationError) {
	if in.Name != nil && len(strings.TrimSpace(*in.Name)) > maxNameLength {
		ve.Add("name", ErrNameTooLong)
	}
	if in.QuantityPurchased != nil && *in.QuantityPurchased < 0 {
		ve.Add("quantityPurchased", ErrNegativeQuantity)
	}
	if in.QuantitySold != nil && *in.QuantitySold < 0 {
		ve.Add("quantitySold", ErrNegativeQuantity)
	}
	checkPrice(ve, "purchasePrice", in.PurchasePrice)
	checkPrice(ve, "salePrice", in.SalePrice)
}

func checkPrice(ve *ValidationError, field string, p *Money) {
	switch {
	case p == nil:
	case p.IsNegative():
		ve.Add(field, ErrNegativePrice)
	case !p.Amount.Equal(p.Amount.Truncate(maxPriceScale)):
		ve.Add(field, ErrPriceScale)
	case p.Amount.GreaterThanOrEqual(maxPrice):
		ve.Add(field, ErrPriceTooLarge)
	}
}

// WithDefaultSaleDate fills a missing LastSaleDate with now, the behaviour
// of the entry form when a record is created or edited.
func (in RecordInput) WithDefaultSaleDate(now time.Time) RecordInput {
	if in.LastSaleDate == nil {
		in.LastSaleDate = &now
	}
	return in
}
