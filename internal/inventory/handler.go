package inventory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/elberthomay/storefront/internal/auth"
	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/httpapi"
)

const maxItemQuantity = 9999

type Handler struct {
	repo   *ItemRepository
	logger *slog.Logger
}

func NewHandler(repo *ItemRepository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}

	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if item == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, item)
}

type createItemRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Quantity    int      `json:"quantity"`
	Images      []string `json:"images"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	if actor.ShopID == "" {
		httpapi.WriteDomainError(w, h.logger, domain.ErrForbidden)
		return
	}

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid request body"))
		return
	}

	if req.Name == "" || len(req.Name) > 255 {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("name must be 1-255 characters"))
		return
	}
	if req.Price < 0 {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("price must not be negative"))
		return
	}
	if req.Quantity < 0 || req.Quantity > maxItemQuantity {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("quantity must be between 0 and 9999"))
		return
	}

	item := &domain.Item{
		ShopID:      actor.ShopID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
	for i, name := range req.Images {
		item.Images = append(item.Images, domain.ItemImage{ImageName: name, Order: i})
	}

	if err := h.repo.Create(r.Context(), item); err != nil {
		h.logger.Error("failed to create item", "error", err)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("item created", "item_id", item.ID, "shop_id", item.ShopID)
	httpapi.WriteJSON(w, h.logger, http.StatusCreated, item)
}

type updateItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	Quantity    *int    `json:"quantity"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid request body"))
		return
	}

	if req.Name != nil && (*req.Name == "" || len(*req.Name) > 255) {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("name must be 1-255 characters"))
		return
	}
	if req.Price != nil && *req.Price < 0 {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("price must not be negative"))
		return
	}
	if req.Quantity != nil && (*req.Quantity < 0 || *req.Quantity > maxItemQuantity) {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("quantity must be between 0 and 9999"))
		return
	}

	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if item == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}
	if !actor.OwnsShop(item.ShopID) && !actor.IsStaff() {
		httpapi.WriteDomainError(w, h.logger, domain.ErrForbidden)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, ItemUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.logger.Error("failed to update item", "error", err, "item_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if updated == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}

	h.logger.Info("item updated", "item_id", id)
	httpapi.WriteJSON(w, h.logger, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}

	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get item", "error", err, "item_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if item == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}
	if !actor.OwnsShop(item.ShopID) && !actor.IsStaff() {
		httpapi.WriteDomainError(w, h.logger, domain.ErrForbidden)
		return
	}

	deleted, err := h.repo.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete item", "error", err, "item_id", id)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if !deleted {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}

	h.logger.Info("item deleted", "item_id", id)
	w.WriteHeader(http.StatusNoContent)
}
