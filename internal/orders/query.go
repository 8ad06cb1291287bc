package orders

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elberthomay/storefront/internal/domain"
)

const (
	OrderByNewest = "newest"
	OrderByOldest = "oldest"

	maxStatusFilters = 10
	defaultLimit     = 10
	defaultPage      = 1
	maxLimit         = 100
	maxPage          = 100
)

// ListFilter is a validated order listing query. Exactly one of UserID and
// ShopID is set by the query service before it reaches the repository.
type ListFilter struct {
	UserID    string
	ShopID    string
	Statuses  []domain.OrderStatus
	ItemName  string
	NewerThan *time.Time
	OrderBy   string
	Limit     int
	Page      int
}

// ParseListQuery validates the listing query parameters: status a set of up
// to ten known states, newerThan an RFC 3339 timestamp, orderBy newest or
// oldest, limit and page within 1-100.
func ParseListQuery(values url.Values) (ListFilter, error) {
	filter := ListFilter{
		OrderBy: OrderByNewest,
		Limit:   defaultLimit,
		Page:    defaultPage,
	}

	if raw := values.Get("status"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) > maxStatusFilters {
			return filter, domain.ValidationError("at most 10 status values allowed")
		}
		for _, part := range parts {
			status := domain.OrderStatus(strings.TrimSpace(part))
			if !domain.ValidOrderStatus(status) {
				return filter, domain.ValidationError("unknown status " + strconv.Quote(string(status)))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	filter.ItemName = values.Get("itemName")

	if raw := values.Get("newerThan"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, domain.ValidationError("newerThan must be an RFC 3339 datetime")
		}
		filter.NewerThan = &t
	}

	if raw := values.Get("orderBy"); raw != "" {
		if raw != OrderByNewest && raw != OrderByOldest {
			return filter, domain.ValidationError("orderBy must be newest or oldest")
		}
		filter.OrderBy = raw
	}

	var err error
	filter.Limit, err = parseBounded(values.Get("limit"), "limit", defaultLimit, maxLimit)
	if err != nil {
		return filter, err
	}
	filter.Page, err = parseBounded(values.Get("page"), "page", defaultPage, maxPage)
	if err != nil {
		return filter, err
	}

	return filter, nil
}

func parseBounded(raw, name string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, domain.ValidationError(name + " must be between 1 and " + strconv.Itoa(max))
	}
	return n, nil
}

// QueryService serves the buyer and seller order listings. Read-only; it
// layers authorization over OrderRepository.List.
type QueryService struct {
	orders *OrderRepository
}

func NewQueryService(orders *OrderRepository) *QueryService {
	return &QueryService{orders: orders}
}

// ListForBuyer returns the actor's own orders.
func (s *QueryService) ListForBuyer(ctx context.Context, actor domain.Actor, filter ListFilter) ([]domain.Order, error) {
	filter.UserID = actor.UserID
	filter.ShopID = ""
	return s.orders.List(ctx, filter)
}

// ListForShop returns a shop's orders; only the shop owner and staff may
// view them.
func (s *QueryService) ListForShop(ctx context.Context, actor domain.Actor, shopID string, filter ListFilter) ([]domain.Order, error) {
	if !actor.OwnsShop(shopID) && !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	filter.ShopID = shopID
	filter.UserID = ""
	return s.orders.List(ctx, filter)
}
