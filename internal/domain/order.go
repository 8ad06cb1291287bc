package domain

import "time"

type OrderStatus string

const (
	OrderStatusAwaiting   OrderStatus = "awaiting"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether s is one of the known order states.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusAwaiting, OrderStatusConfirmed, OrderStatusDelivering,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// AddressSnapshot is the shipping address copied onto an order at placement
// time. It is stored denormalized so later edits to the buyer's address book
// do not rewrite order history.
type AddressSnapshot struct {
	Recipient   string `json:"recipient"`
	PhoneNumber string `json:"phone_number"`
	Province    string `json:"province"`
	City        string `json:"city"`
	District    string `json:"district"`
	Village     string `json:"village"`
	Detail      string `json:"detail"`
}

// OrderItem is an immutable snapshot of an item at the moment the order was
// placed. ItemID is a weak reference; the item row may be edited or deleted
// afterwards without touching this copy.
type OrderItem struct {
	ItemID      string      `json:"item_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       int64       `json:"price"`
	Quantity    int         `json:"quantity"`
	Images      []ItemImage `json:"images,omitempty"`
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	ShopID    string          `json:"shop_id"`
	ShopName  string          `json:"shop_name,omitempty"`
	Status    OrderStatus     `json:"status"`
	Address   AddressSnapshot `json:"address"`
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is the order price, recomputed from the item snapshots so it can
// never drift from them.
func (o *Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}
