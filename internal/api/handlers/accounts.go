package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ivolkov/statement-ingest/internal/api/middleware"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	store store.AccountStore
	log   zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(st store.AccountStore, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		store: st,
		log:   log,
	}
}

// ListAccounts handles GET /api/accounts.
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	accounts, err := h.store.ListAccounts(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to list accounts")
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, renderAccount(acct))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": out,
		"count":    len(out),
	})
}
