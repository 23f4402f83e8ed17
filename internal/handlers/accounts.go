package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/models"
	"github.com/BradenHooton/steeldesk/internal/services"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AccountLockService reads and clears account lock state
type AccountLockService interface {
	GetLockStatus(ctx context.Context, userID string) (*services.AccountLockStatus, error)
	Unlock(ctx context.Context, userID, actorID string) error
}

// AccountHandler serves the admin console's account lock endpoints
type AccountHandler struct {
	service AccountLockService
	logger  *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountLockService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

// GetLockStatus handles GET /admin/api/accounts/{id}/lock
func (h *AccountHandler) GetLockStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Account ID is required")
		return
	}

	status, err := h.service.GetLockStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Unlock handles POST /admin/api/accounts/{id}/unlock
func (h *AccountHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Account ID is required")
		return
	}

	var actorID string
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = claims.UserID
	}

	if err := h.service.Unlock(r.Context(), id, actorID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	status, err := h.service.GetLockStatus(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

func (h *AccountHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logger.Error("account store unavailable", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Account store unavailable")
	default:
		h.logger.Error("account lock request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
