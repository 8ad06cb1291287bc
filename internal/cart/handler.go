package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/elberthomay/storefront/internal/auth"
	"github.com/elberthomay/storefront/internal/domain"
	"github.com/elberthomay/storefront/internal/httpapi"
)

type Handler struct {
	repo   *CartRepository
	logger *slog.Logger
}

func NewHandler(repo *CartRepository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	lines, err := h.repo.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("failed to list cart", "error", err, "user_id", actor.UserID)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, lines)
}

type addRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid request body"))
		return
	}
	if _, err := uuid.Parse(req.ItemID); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}
	if req.Quantity < 1 || req.Quantity > 9999 {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("quantity must be between 1 and 9999"))
		return
	}

	line, err := h.repo.AddQuantity(r.Context(), actor.UserID, req.ItemID, req.Quantity)
	if err != nil {
		if isForeignKeyViolation(err) {
			httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
			return
		}
		h.logger.Error("failed to add cart line", "error", err, "user_id", actor.UserID)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("cart line added", "user_id", actor.UserID, "item_id", req.ItemID, "quantity", line.Quantity)
	httpapi.WriteJSON(w, h.logger, http.StatusOK, line)
}

type updateRequest struct {
	Quantity *int  `json:"quantity"`
	Selected *bool `json:"selected"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	itemID := r.PathValue("itemId")
	if _, err := uuid.Parse(itemID); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid request body"))
		return
	}
	if req.Quantity == nil && req.Selected == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("nothing to update"))
		return
	}
	if req.Quantity != nil && (*req.Quantity < 0 || *req.Quantity > 9999) {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("quantity must be between 0 and 9999"))
		return
	}

	var line *domain.CartLine
	var err error

	if req.Quantity != nil {
		line, err = h.repo.SetQuantity(r.Context(), actor.UserID, itemID, *req.Quantity)
		if err == nil && line != nil && *req.Quantity > 0 && req.Selected != nil {
			line, err = h.repo.SetSelected(r.Context(), actor.UserID, itemID, *req.Selected)
		}
	} else {
		line, err = h.repo.SetSelected(r.Context(), actor.UserID, itemID, *req.Selected)
	}

	if err != nil {
		h.logger.Error("failed to update cart line", "error", err, "user_id", actor.UserID, "item_id", itemID)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if line == nil {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}

	h.logger.Info("cart line updated", "user_id", actor.UserID, "item_id", itemID)
	httpapi.WriteJSON(w, h.logger, http.StatusOK, line)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	itemID := r.PathValue("itemId")
	if _, err := uuid.Parse(itemID); err != nil {
		httpapi.WriteDomainError(w, h.logger, domain.ValidationError("invalid item id"))
		return
	}

	deleted, err := h.repo.Delete(r.Context(), actor.UserID, itemID)
	if err != nil {
		h.logger.Error("failed to delete cart line", "error", err, "user_id", actor.UserID, "item_id", itemID)
		httpapi.WriteDomainError(w, h.logger, err)
		return
	}
	if !deleted {
		httpapi.WriteDomainError(w, h.logger, domain.ErrNotFound)
		return
	}

	h.logger.Info("cart line deleted", "user_id", actor.UserID, "item_id", itemID)
	w.WriteHeader(http.StatusNoContent)
}
