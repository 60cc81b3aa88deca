package orders

import "time"

// ReturnWindow is how long after placement an order stays eligible for
// return.
const ReturnWindow = 7 * 24 * time.Hour

// Item is a line of an order, snapshotted from the book row at placement
// time. Later changes to the book's price or title do not touch it.
type Item struct {
	BookID     string `json:"book_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Status      Status     `json:"status"`
	TotalCents  int64      `json:"total_cents"`
	Items       []Item     `json:"items"`
	PlacedAt    time.Time  `json:"placed_at"`
	ReturnTill  time.Time  `json:"return_till"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
}

// ItemInput is a requested line: a book and how many copies of it.
type ItemInput struct {
	BookID string `json:"book_id"`
	Qty    int    `json:"qty"`
}

// PlaceOrderInput carries a purchase intent. BookID/Quantity is the
// "buy now" form, Items the cart-derived form; at least one must be set
// and both may be, in which case they merge into one order.
type PlaceOrderInput struct {
	UserID   string
	BookID   string
	Quantity int
	Items    []ItemInput
}
