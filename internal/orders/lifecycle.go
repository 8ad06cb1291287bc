package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/elberthomay/storefront/internal/domain"
)

type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionDeliver Action = "deliver"
)

// LifecycleService applies manual order transitions. Every transition is a
// single conditional update on the status column; inventory is never touched
// here.
type LifecycleService struct {
	orders    *OrderRepository
	publisher TimeoutPublisher
	timeouts  TimeoutConfig
	logger    *slog.Logger
}

func NewLifecycleService(orders *OrderRepository, publisher TimeoutPublisher,
	timeouts TimeoutConfig, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{
		orders:    orders,
		publisher: publisher,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// Transition validates and applies one lifecycle action on behalf of an
// actor. Authorization is checked before state validity; both must hold.
func (s *LifecycleService) Transition(ctx context.Context, orderID string, actor domain.Actor, action Action) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	target, err := decideTransition(actor, order, action)
	if err != nil {
		return nil, err
	}

	applied, err := s.orders.TransitionStatus(ctx, orderID, order.Status, target)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a race against another transition; re-read to report the
		// state that beat us.
		current, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.InvalidStatusError{
			Action:   string(action),
			Current:  current.Status,
			Required: string(order.Status),
		}
	}

	order.Status = target

	switch target {
	case domain.OrderStatusConfirmed:
		s.scheduleTimeout(ctx, domain.StatusTimeoutEvent{
			OrderID:        order.ID,
			ExpectedStatus: domain.OrderStatusConfirmed,
			TargetStatus:   domain.OrderStatusCancelled,
			Deadline:       time.Now().UTC().Add(s.timeouts.Confirmed),
		})
	case domain.OrderStatusDelivering:
		s.scheduleTimeout(ctx, domain.StatusTimeoutEvent{
			OrderID:        order.ID,
			ExpectedStatus: domain.OrderStatusDelivering,
			TargetStatus:   domain.OrderStatusDelivered,
			Deadline:       time.Now().UTC().Add(s.timeouts.Delivering),
		})
	}

	s.logger.Info("order transitioned", "order_id", order.ID, "action", action, "status", target)
	return order, nil
}

func (s *LifecycleService) scheduleTimeout(ctx context.Context, event domain.StatusTimeoutEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event.OrderID, event); err != nil {
		s.logger.Error("failed to schedule status timeout", "error", err,
			"order_id", event.OrderID, "target_status", event.TargetStatus)
	}
}

// decideTransition enforces the role table and the transition graph:
//
//	awaiting  --confirm (shop, staff)---------> confirmed
//	awaiting  --cancel (buyer, shop, staff)---> cancelled
//	confirmed --cancel (shop, staff)----------> cancelled
//	confirmed --deliver (shop, staff)---------> delivering
//
// Anyone who is neither the buyer, the owning shop, nor staff is rejected
// outright, regardless of the order's state.
func decideTransition(actor domain.Actor, order *domain.Order, action Action) (domain.OrderStatus, error) {
	isBuyer := actor.UserID == order.UserID
	isSeller := actor.OwnsShop(order.ShopID) || actor.IsStaff()

	if !isBuyer && !isSeller {
		return "", domain.ErrForbidden
	}

	switch action {
	case ActionConfirm:
		if !isSeller {
			return "", domain.ErrForbidden
		}
		if order.Status != domain.OrderStatusAwaiting {
			return "", &domain.InvalidStatusError{
				Action:   string(action),
				Current:  order.Status,
				Required: string(domain.OrderStatusAwaiting),
			}
		}
		return domain.OrderStatusConfirmed, nil

	case ActionCancel:
		switch order.Status {
		case domain.OrderStatusAwaiting:
			return domain.OrderStatusCancelled, nil
		case domain.OrderStatusConfirmed:
			// Once the shop has confirmed, the buyer can no longer
			// unilaterally cancel.
			if !isSeller {
				return "", domain.ErrForbidden
			}
			return domain.OrderStatusCancelled, nil
		default:
			return "", &domain.InvalidStatusError{
				Action:   string(action),
				Current:  order.Status,
				Required: "awaiting or confirmed",
			}
		}

	case ActionDeliver:
		if !isSeller {
			return "", domain.ErrForbidden
		}
		if order.Status != domain.OrderStatusConfirmed {
			return "", &domain.InvalidStatusError{
				Action:   string(action),
				Current:  order.Status,
				Required: string(domain.OrderStatusConfirmed),
			}
		}
		return domain.OrderStatusDelivering, nil
	}

	return "", domain.ValidationError("unknown action")
}
