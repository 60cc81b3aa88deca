package books

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("book not found")

// Book is an inventory record. Count is the number of copies still
// available; it never goes below zero.
type Book struct {
	ID         string
	Title      string
	Author     string
	PriceCents int64
	Count      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilter narrows the catalog listing.
type ListFilter struct {
	Author      string
	TitleQuery  string
	InStockOnly bool
	Limit       int
	Offset      int
}
