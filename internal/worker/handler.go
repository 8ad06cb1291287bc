package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elberthomay/storefront/internal/domain"
)

// StatusUpdater is the conditional transition the timeout job applies.
// Implemented by orders.OrderRepository.
type StatusUpdater interface {
	TransitionStatus(ctx context.Context, id string, expected, target domain.OrderStatus) (bool, error)
}

// TimeoutHandler executes scheduled order transitions. Each event names the
// status the order is expected to still be in; a manual transition that
// already happened makes the event a no-op rather than clobbering it.
type TimeoutHandler struct {
	orders StatusUpdater
	logger *slog.Logger
}

func NewTimeoutHandler(orders StatusUpdater, logger *slog.Logger) *TimeoutHandler {
	return &TimeoutHandler{orders: orders, logger: logger}
}

func (h *TimeoutHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.StatusTimeoutEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status timeout event: %w", err)
	}

	if !domain.ValidOrderStatus(event.ExpectedStatus) || !domain.ValidOrderStatus(event.TargetStatus) {
		return fmt.Errorf("status timeout event for order %s carries unknown status", event.OrderID)
	}

	if wait := time.Until(event.Deadline); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	applied, err := h.orders.TransitionStatus(ctx, event.OrderID, event.ExpectedStatus, event.TargetStatus)
	if err != nil {
		return fmt.Errorf("apply status timeout for order %s: %w", event.OrderID, err)
	}

	if !applied {
		h.logger.Info("status timeout skipped, order already transitioned",
			"order_id", event.OrderID, "expected_status", event.ExpectedStatus)
		return nil
	}

	h.logger.Info("order transitioned by timeout",
		"order_id", event.OrderID, "status", event.TargetStatus)
	return nil
}
