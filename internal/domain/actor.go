package domain

const (
	PrivilegeRoot  = 0
	PrivilegeAdmin = 1
	PrivilegeUser  = 2
)

// Actor is the authenticated caller of a request: the user, the shop they
// own (if any), and their privilege level.
type Actor struct {
	UserID    string
	ShopID    string // empty when the user owns no shop
	Privilege int
}

// IsStaff reports whether the actor holds root or admin privilege.
func (a Actor) IsStaff() bool {
	return a.Privilege <= PrivilegeAdmin
}

// OwnsShop reports whether the actor's shop is the given one.
func (a Actor) OwnsShop(shopID string) bool {
	return a.ShopID != "" && a.ShopID == shopID
}
