package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks a missing order, item, shop, or user.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an actor without the role or ownership the
	// operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrStaleInventory is returned when the version check of an item
	// decrement matches zero rows: another placement or an item edit got
	// in between the read and the write. The whole placement rolls back
	// and the client retries from a fresh cart read.
	ErrStaleInventory = errors.New("item changed during order placement")
)

// ValidationError marks malformed input: bad id formats, out-of-range
// query parameters, impossible quantities.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// InsufficientItem is one cart line whose requested quantity exceeds the
// item's current stock.
type InsufficientItem struct {
	ItemID    string `json:"item_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InventoryError aborts an order placement when one or more cart lines ask
// for more stock than exists. It enumerates every offending line so the
// client can fix the whole cart in one pass.
type InventoryError struct {
	Items []InsufficientItem
}

func (e *InventoryError) Error() string {
	names := make([]string, len(e.Items))
	for i, item := range e.Items {
		names[i] = fmt.Sprintf("%s (requested %d, available %d)", item.Name, item.Requested, item.Available)
	}
	return "insufficient stock: " + strings.Join(names, ", ")
}

// InvalidStatusError rejects a lifecycle transition that is not valid from
// the order's current state.
type InvalidStatusError struct {
	Action   string
	Current  OrderStatus
	Required string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("cannot %s order in status %q, order must be %q", e.Action, e.Current, e.Required)
}
