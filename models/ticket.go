package models

import (
	"fmt"
	"strings"
	"ticket-workflow/internal/status"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryVIP     Category = "vip"
	CategoryRegular Category = "regular"
)

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryVIP:
		return CategoryVIP, nil
	case CategoryRegular:
		return CategoryRegular, nil
	}
	return "", fmt.Errorf("invalid ticket category %q, use vip or regular", s)
}

// TicketType is one row of the inventory ledger.
//
// Available + Reserved + Sold == Total holds between transactions. Reserved
// counts units held by pending and approved orders; Sold counts completed ones.
type TicketType struct {
	ID        string              `json:"id"`
	Category  Category            `json:"category"`
	Name      string              `json:"name"`
	Price     decimal.NullDecimal `json:"price"`
	Total     int                 `json:"total"`
	Available int                 `json:"available"`
	Reserved  int                 `json:"reserved"`
	Sold      int                 `json:"sold"`
	Version   int                 `json:"version"` // optimistic locking
	UpdatedAt time.Time           `json:"updated_at"`
}

// Allocated is the number of units no longer available: reserved plus sold.
func (t *TicketType) Allocated() int {
	return t.Reserved + t.Sold
}

func (t *TicketType) Clone() *TicketType {
	c := *t
	return &c
}

// CheckInvariant reports a broken ledger row.
func (t *TicketType) CheckInvariant() error {
	if t.Available < 0 || t.Reserved < 0 || t.Sold < 0 || t.Total < 0 {
		return fmt.Errorf("ticket type %s: %w", t.ID, status.ErrNegativeStock)
	}
	if t.Available+t.Reserved+t.Sold != t.Total {
		return fmt.Errorf("ticket type %s: available %d + reserved %d + sold %d != total %d",
			t.ID, t.Available, t.Reserved, t.Sold, t.Total)
	}
	return nil
}

func (t *TicketType) Reserve(qty int) error {
	if qty <= 0 {
		return status.ErrQuantityCap
	}
	if qty > t.Available {
		return status.ErrInsufficientStock
	}
	t.Available -= qty
	t.Reserved += qty
	return nil
}

// CommitSale turns a reservation into a sale.
func (t *TicketType) CommitSale(qty int) error {
	if qty <= 0 || qty > t.Reserved {
		return status.ErrNegativeStock
	}
	t.Reserved -= qty
	t.Sold += qty
	return nil
}

// Release returns reserved units to the available pool.
func (t *TicketType) Release(qty int) error {
	if qty <= 0 || qty > t.Reserved {
		return status.ErrNegativeStock
	}
	t.Reserved -= qty
	t.Available += qty
	return nil
}

// Refund returns sold units to the available pool.
func (t *TicketType) Refund(qty int) error {
	if qty <= 0 || qty > t.Sold {
		return status.ErrNegativeStock
	}
	t.Sold -= qty
	t.Available += qty
	return nil
}

// AdjustCapacity resizes the row. Units already reserved or sold are kept,
// so the new total may not drop below them.
func (t *TicketType) AdjustCapacity(newTotal int) error {
	if newTotal < t.Allocated() {
		return status.ErrNegativeStock
	}
	t.Total = newTotal
	t.Available = newTotal - t.Allocated()
	return nil
}

func (t *TicketType) SetPrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return status.ErrNegativePrice
	}
	t.Price = decimal.NewNullDecimal(price)
	return nil
}

// DefaultTicketTypes is the inventory the system starts with after a reset.
func DefaultTicketTypes() []*TicketType {
	return []*TicketType{
		{
			ID:        "vip",
			Category:  CategoryVIP,
			Name:      "VIP",
			Price:     decimal.NewNullDecimal(decimal.NewFromInt(100)),
			Total:     50,
			Available: 50,
		},
		{
			ID:        "regular",
			Category:  CategoryRegular,
			Name:      "Regular",
			Price:     decimal.NewNullDecimal(decimal.NewFromInt(85)),
			Total:     30,
			Available: 30,
		},
	}
}
