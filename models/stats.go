package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStats struct {
	TicketTypeID string          `json:"ticket_type_id"`
	Category     Category        `json:"category"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Total        int             `json:"total"`
	Available    int             `json:"available"`
	Reserved     int             `json:"reserved"`
	Sold         int             `json:"sold"`
	Waiting      int             `json:"waiting"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// Stats is a read-only snapshot used by the admin dashboard and by reports.
// Revenue counts approved and completed orders at their captured prices.
type Stats struct {
	Tickets        []TicketStats       `json:"tickets"`
	OrdersByStatus map[OrderStatus]int `json:"orders_by_status"`
	TotalOrders    int                 `json:"total_orders"`
	Revenue        decimal.Decimal     `json:"revenue"`
	GeneratedAt    time.Time           `json:"generated_at"`
}
