package domain

import "time"

type ItemImage struct {
	ImageName string `json:"image_name"`
	Order     int    `json:"order"`
}

// Item is a sellable product owned by a shop. Version is the optimistic
// concurrency token: every mutation of the row increments it, and order
// placement decrements quantity only while the version it read still holds.
type Item struct {
	ID          string      `json:"id"`
	ShopID      string      `json:"shop_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       int64       `json:"price"`
	Quantity    int         `json:"quantity"`
	Version     int64       `json:"-"`
	Images      []ItemImage `json:"images,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CartLine is a (user, item) pairing with the desired quantity. Only
// selected lines participate in order placement.
type CartLine struct {
	UserID   string `json:"user_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Selected bool   `json:"selected"`
}

// SelectedCartItem is a cart line joined with the current state of its item,
// as read at the start of order placement. RequestedQty comes from the cart
// line; the rest is the item row, including the version the conditional
// decrement must match.
type SelectedCartItem struct {
	ItemID       string
	ShopID       string
	ShopName     string
	Name         string
	Description  string
	Price        int64
	RequestedQty int
	AvailableQty int
	Version      int64
	Images       []ItemImage
}
