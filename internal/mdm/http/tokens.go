package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/mdm/internal/mdm/service"
	"github.com/aussiebroadwan/mdm/pkg/httpx"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

// TokenIssueHandler exchanges HTTP basic credentials for a session token.
type TokenIssueHandler struct {
	TokenService *service.TokenService
}

func (h *TokenIssueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	username, password, ok := r.BasicAuth()
	if !ok || username == "" {
		w.Header().Set("WWW-Authenticate", `Basic realm="mdm"`)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "basic credentials required")
		return
	}

	session, err := h.TokenService.Issue(ctx, username, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "username or password incorrect")
			return
		}
		log.Error("token issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, session)
}
