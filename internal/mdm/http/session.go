package http

import (
	"net/http"

	"github.com/aussiebroadwan/mdm/internal/mdm/service"
	"github.com/aussiebroadwan/mdm/pkg/httpx"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

// SessionHandler serves the authenticated session endpoints: the probe,
// keep-alive rotation, and invalidation.
type SessionHandler struct {
	TokenService   *service.TokenService
	AccountService *service.AccountService
}

type sessionAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type sessionInfoResponse struct {
	Account sessionAccount `json:"account"`
	Version string         `json:"version"`
}

// HandleInfo returns the account behind the presented token. Reaching it at
// all proves the token is live; the body is context for the caller.
func (h *SessionHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	accountID := httpx.SubjectFromCtx(ctx)
	account, err := h.AccountService.GetAccountByID(ctx, accountID)
	if err != nil {
		log.Warn("failed to load account", "account_id", accountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sessionInfoResponse{
		Account: sessionAccount{ID: account.ID, Username: account.Username},
		Version: APIVersion,
	})
}

// HandleKeepAlive swaps the presented token for a fresh one with a full TTL.
func (h *SessionHandler) HandleKeepAlive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	session, err := h.TokenService.KeepAlive(ctx, httpx.SubjectFromCtx(ctx), httpx.TokenIDFromCtx(ctx))
	if err != nil {
		log.Error("keep-alive rotation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, session)
}

// HandleInvalidate revokes the presented token immediately.
func (h *SessionHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.TokenService.Revoke(ctx, httpx.TokenIDFromCtx(ctx)); err != nil {
		log.Error("token revocation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
