package order

import "time"

// StatusNew is the status of every freshly placed order.
const StatusNew = "new"

// Customer holds the buyer's delivery details.
type Customer struct {
	Name    string
	Phone   string
	City    string
	Address string
	Notes   string
}

// CartItem is one requested cart line. A nil Qty means one unit. Any price
// or title the client sends never reaches this type.
type CartItem struct {
	Slug string
	Qty  *float64
}

// Line is the frozen snapshot of a purchased product.
type Line struct {
	Slug     string `json:"slug"`
	TitleFR  string `json:"title_fr"`
	TitleAR  string `json:"title_ar"`
	PriceMAD int64  `json:"price_mad"`
	Qty      int    `json:"qty"`
}

// Order is an immutable checkout record.
type Order struct {
	ID          string
	Customer    Customer
	Items       []Line
	SubtotalMAD int64
	Status      string
	CreatedAt   time.Time
}

// PricedProduct is the authoritative catalog data an order line is built from.
type PricedProduct struct {
	Slug     string
	TitleFR  string
	TitleAR  string
	PriceMAD int64
}
