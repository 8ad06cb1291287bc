package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elberthomay/storefront/internal/domain"
)

const (
	buyerID     = "buyer-1"
	sellerID    = "seller-1"
	shopID      = "shop-1"
	otherShopID = "shop-2"
)

func orderIn(status domain.OrderStatus) *domain.Order {
	return &domain.Order{ID: "order-1", UserID: buyerID, ShopID: shopID, Status: status}
}

func buyer() domain.Actor {
	return domain.Actor{UserID: buyerID, Privilege: domain.PrivilegeUser}
}

func seller() domain.Actor {
	return domain.Actor{UserID: sellerID, ShopID: shopID, Privilege: domain.PrivilegeUser}
}

func admin() domain.Actor {
	return domain.Actor{UserID: "admin-1", Privilege: domain.PrivilegeAdmin}
}

func root() domain.Actor {
	return domain.Actor{UserID: "root-1", Privilege: domain.PrivilegeRoot}
}

func stranger() domain.Actor {
	return domain.Actor{UserID: "stranger-1", ShopID: otherShopID, Privilege: domain.PrivilegeUser}
}

func TestDecideTransitionConfirm(t *testing.T) {
	for _, actor := range []domain.Actor{seller(), admin(), root()} {
		target, err := decideTransition(actor, orderIn(domain.OrderStatusAwaiting), ActionConfirm)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusConfirmed, target)
	}

	_, err := decideTransition(buyer(), orderIn(domain.OrderStatusAwaiting), ActionConfirm)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = decideTransition(stranger(), orderIn(domain.OrderStatusAwaiting), ActionConfirm)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDecideTransitionConfirmWrongStatus(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusDelivering,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		_, err := decideTransition(seller(), orderIn(status), ActionConfirm)
		var statusErr *domain.InvalidStatusError
		require.ErrorAs(t, err, &statusErr, "confirm from %s", status)
		require.Equal(t, status, statusErr.Current)
		require.Equal(t, string(domain.OrderStatusAwaiting), statusErr.Required)
	}
}

func TestDecideTransitionCancel(t *testing.T) {
	// From awaiting, buyer and seller and staff may all cancel.
	for _, actor := range []domain.Actor{buyer(), seller(), admin(), root()} {
		target, err := decideTransition(actor, orderIn(domain.OrderStatusAwaiting), ActionCancel)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCancelled, target)
	}

	// From confirmed, the buyer may no longer cancel unilaterally.
	_, err := decideTransition(buyer(), orderIn(domain.OrderStatusConfirmed), ActionCancel)
	require.ErrorIs(t, err, domain.ErrForbidden)

	for _, actor := range []domain.Actor{seller(), admin(), root()} {
		target, err := decideTransition(actor, orderIn(domain.OrderStatusConfirmed), ActionCancel)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatusCancelled, target)
	}
}

func TestDecideTransitionCancelTerminalStates(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusDelivering,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		_, err := decideTransition(seller(), orderIn(status), ActionCancel)
		var statusErr *domain.InvalidStatusError
		require.ErrorAs(t, err, &statusErr, "cancel from %s", status)
	}
}

func TestDecideTransitionDeliver(t *testing.T) {
	target, err := decideTransition(seller(), orderIn(domain.OrderStatusConfirmed), ActionDeliver)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivering, target)

	_, err = decideTransition(buyer(), orderIn(domain.OrderStatusConfirmed), ActionDeliver)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = decideTransition(seller(), orderIn(domain.OrderStatusAwaiting), ActionDeliver)
	var statusErr *domain.InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, string(domain.OrderStatusConfirmed), statusErr.Required)
}

func TestDecideTransitionStrangerAlwaysForbidden(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusAwaiting,
		domain.OrderStatusConfirmed,
		domain.OrderStatusDelivering,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	} {
		for _, action := range []Action{ActionConfirm, ActionCancel, ActionDeliver} {
			_, err := decideTransition(stranger(), orderIn(status), action)
			require.ErrorIs(t, err, domain.ErrForbidden, "%s from %s", action, status)
		}
	}
}

func TestDecideTransitionSellerOfOtherShop(t *testing.T) {
	order := orderIn(domain.OrderStatusAwaiting)
	order.ShopID = otherShopID

	// The seller does not own this order's shop and is not the buyer.
	_, err := decideTransition(seller(), order, ActionConfirm)
	require.ErrorIs(t, err, domain.ErrForbidden)
}
