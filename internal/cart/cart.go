package cart

import "time"

// Item is one cart line for a user. Carts only interact with the order
// core through RemoveBooks; everything else about them belongs to the
// storefront.
type Item struct {
	UserID  string
	BookID  string
	Qty     int
	AddedAt time.Time
}
