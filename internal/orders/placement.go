package orders

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/elberthomay/storefront/internal/cart"
	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/inventory"
	"github.com/elberthomay/storefront/internal/telemetry"
)

// TimeoutPublisher schedules delayed conditional transitions. Satisfied by
// messaging.Producer; nil disables scheduling.
type TimeoutPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// TimeoutConfig holds how long an order may sit in each non-terminal state
// before the worker transitions it automatically.
type TimeoutConfig struct {
	Awaiting   time.Duration
	Confirmed  time.Duration
	Delivering time.Duration
}

// PlacementService turns a user's selected cart lines into per-shop orders,
// decrementing inventory under optimistic concurrency control. It owns the
// placement transaction; the repositories only contribute statements to it.
type PlacementService struct {
	db        *sql.DB
	carts     *cart.CartRepository
	items     *inventory.ItemRepository
	orders    *OrderRepository
	publisher TimeoutPublisher
	timeouts  TimeoutConfig
	metrics   *telemetry.OrderMetrics
	logger    *slog.Logger
}

func NewPlacementService(db *sql.DB, carts *cart.CartRepository, items *inventory.ItemRepository,
	orders *OrderRepository, publisher TimeoutPublisher, timeouts TimeoutConfig,
	metrics *telemetry.OrderMetrics, logger *slog.Logger) *PlacementService {
	return &PlacementService{
		db:        db,
		carts:     carts,
		items:     items,
		orders:    orders,
		publisher: publisher,
		timeouts:  timeouts,
		metrics:   metrics,
		logger:    logger,
	}
}

// PlaceOrder converts every selected cart line of the user into orders, one
// per shop. An empty selection returns (nil, nil): nothing to order is a
// valid terminal state, not an error.
//
// All inventory decrements, cart-line deletions, and order inserts commit in
// one transaction. Each decrement is guarded by the item version read up
// front; any version mismatch rolls back the whole placement with
// ErrStaleInventory, so a losing racer never oversells and never leaves a
// partial order behind.
func (s *PlacementService) PlaceOrder(ctx context.Context, userID string) ([]domain.Order, error) {
	selected, err := s.carts.ListSelectedItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		s.record(ctx, "empty")
		return nil, nil
	}

	if invErr := checkAvailability(selected); invErr != nil {
		s.record(ctx, "insufficient")
		return nil, invErr
	}

	address, err := s.orders.SelectedAddress(ctx, userID)
	if err != nil {
		return nil, err
	}
	if address == nil {
		return nil, domain.ValidationError("no shipping address selected")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range selected {
		ok, err := s.items.DecrementQuantity(ctx, tx, item.ItemID, item.RequestedQty, item.Version)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.record(ctx, "conflict")
			return nil, domain.ErrStaleInventory
		}

		if err := s.carts.DeleteLineTx(ctx, tx, userID, item.ItemID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	var created []domain.Order

	for _, group := range groupByShop(selected) {
		order := domain.Order{
			ID:        uuid.New().String(),
			UserID:    userID,
			ShopID:    group.ShopID,
			ShopName:  group.ShopName,
			Status:    domain.OrderStatusAwaiting,
			Address:   *address,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, item := range group.Items {
			order.Items = append(order.Items, domain.OrderItem{
				ItemID:      item.ItemID,
				Name:        item.Name,
				Description: item.Description,
				Price:       item.Price,
				Quantity:    item.RequestedQty,
				Images:      item.Images,
			})
		}

		if err := s.orders.CreateTx(ctx, tx, &order); err != nil {
			return nil, err
		}
		created = append(created, order)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.record(ctx, "created")

	for _, order := range created {
		s.scheduleTimeout(ctx, domain.StatusTimeoutEvent{
			OrderID:        order.ID,
			ExpectedStatus: domain.OrderStatusAwaiting,
			TargetStatus:   domain.OrderStatusCancelled,
			Deadline:       order.CreatedAt.Add(s.timeouts.Awaiting),
		})
	}

	return created, nil
}

// scheduleTimeout publishes a delayed transition event. Scheduling is
// best-effort: a publish failure is logged but never fails the operation
// that triggered it.
func (s *PlacementService) scheduleTimeout(ctx context.Context, event domain.StatusTimeoutEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event.OrderID, event); err != nil {
		s.logger.Error("failed to schedule status timeout", "error", err,
			"order_id", event.OrderID, "target_status", event.TargetStatus)
	}
}

func (s *PlacementService) record(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordPlacement(ctx, result)
	}
}

// checkAvailability compares every requested quantity against the stock read
// at load time, collecting all shortfalls so the whole cart can be fixed at
// once. Nil means every line is satisfiable.
func checkAvailability(selected []domain.SelectedCartItem) *domain.InventoryError {
	var insufficient []domain.InsufficientItem
	for _, item := range selected {
		if item.RequestedQty > item.AvailableQty {
			insufficient = append(insufficient, domain.InsufficientItem{
				ItemID:    item.ItemID,
				Name:      item.Name,
				Requested: item.RequestedQty,
				Available: item.AvailableQty,
			})
		}
	}
	if len(insufficient) == 0 {
		return nil
	}
	return &domain.InventoryError{Items: insufficient}
}

type shopGroup struct {
	ShopID   string
	ShopName string
	Items    []domain.SelectedCartItem
}

// groupByShop splits cart items into one group per shop, preserving the
// order shops first appear in.
func groupByShop(selected []domain.SelectedCartItem) []shopGroup {
	index := make(map[string]int)
	var groups []shopGroup

	for _, item := range selected {
		i, ok := index[item.ShopID]
		if !ok {
			i = len(groups)
			index[item.ShopID] = i
			groups = append(groups, shopGroup{ShopID: item.ShopID, ShopName: item.ShopName})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	return groups
}
