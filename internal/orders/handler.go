package orders

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/elberthomay/storefront/internal/auth"
	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/httpapi"
)

type Handler struct {
	placement *PlacementService
	lifecycle *LifecycleService
	query     *QueryService
	orders    *OrderRepository
	logger    *slog.Logger
}

func NewHandler(placement *PlacementService, lifecycle *LifecycleService,
	query *QueryService, orders *OrderRepository, logger *slog.Logger) *Handler {
	return &Handler{
		placement: placement,
		lifecycle: lifecycle,
		query:     query,
		orders:    orders,
		logger:    logger,
	}
}

type orderItemView struct {
	ItemID   string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Image    string `json:"image,omitempty"`
}

type orderView struct {
	ID        string                 `json:"id"`
	ShopID    string                 `json:"shop_id"`
	ShopName  string                 `json:"shop_name"`
	Status    domain.OrderStatus     `json:"status"`
	Total     int64                  `json:"total"`
	Items     []orderItemView        `json:"items"`
	Address   domain.AddressSnapshot `json:"address"`
	CreatedAt time.Time              `json:"created_at"`
}

func toOrderView(order domain.Order) orderView {
	view := orderView{
		ID:        order.ID,
		ShopID:    order.ShopID,
		ShopName:  order.ShopName,
		Status:    order.Status,
		Total:     order.Total(),
		Items:     []orderItemView{},
		Address:   order.Address,
		CreatedAt: order.CreatedAt,
	}
	for _, item := range order.Items {
		itemView := orderItemView{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		}
		if len(item.Images) > 0 {
			itemView.Image = item.Images[0].ImageName
		}
		view.Items = append(view.Items, itemView)
	}
	return view
}

func toOrderViews(orders []domain.Order) []orderView {
	views := make([]orderView, len(orders))
	for i, order := range orders {
		views[i] = toOrderView(order)
	}
	return views
}

// HandlePlace places an order from the caller's selected cart lines.
// 204 when nothing is selected, 200 with the created orders on success,
// 422 on insufficient stock, 409 when the optimistic check lost a race.
func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	created, err := h.placement.PlaceOrder(r.Context(), actor.UserID)
	if err != nil {
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if len(created) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.logger.Info("order placed", "user_id", actor.UserID, "orders", len(created))
	httpapi.WriteJSON(w, h.logger, http.StatusOK, map[string]any{
		"status": "created",
		"orders": toOrderViews(created),
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	id := r.PathValue("orderId")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid order id"))
		return
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if order == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}
	if actor.UserID != order.UserID && !actor.OwnsShop(order.ShopID) && !actor.IsStaff() {
		httpapi.WriteDomainError(w, h.logger, domain.ErrForbidden)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, toOrderView(*order))
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, ActionConfirm)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, ActionCancel)
}

func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, ActionDeliver)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, action Action) {
	actor, _ := auth.ActorFromContext(r.Context())

	id := r.PathValue("orderId")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid order id"))
		return
	}

	order, err := h.lifecycle.Transition(r.Context(), id, actor, action)
	if err != nil {
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, toOrderView(*order))
}

// HandleListMine lists the caller's own orders.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	filter, err := ParseListQuery(r.URL.Query())
	if err != nil {
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	orders, err := h.query.ListForBuyer(r.Context(), actor, filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", actor.UserID)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, toOrderViews(orders))
}

// HandleListShop lists a shop's orders for its owner or staff.
func (h *Handler) HandleListShop(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	shopID := r.PathValue("shopId")
	if _, err := uuid.Parse(shopID); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid shop id"))
		return
	}

	filter, err := ParseListQuery(r.URL.Query())
	if err != nil {
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	orders, err := h.query.ListForShop(r.Context(), actor, shopID, filter)
	if err != nil {
		if err != domain.ErrForbidden {
			h.logger.Error("failed to list shop orders", "error", err, "shop_id", shopID)
		}
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, toOrderViews(orders))
}
