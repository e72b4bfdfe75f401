package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resumekit/resumekit/internal/http/middleware"
	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/security"
	"github.com/resumekit/resumekit/internal/service"
)

type AccountHandler struct {
	accounts *service.AccountSecurityService
	tokens   *service.TokenService
}

func NewAccountHandler(accounts *service.AccountSecurityService, tokens *service.TokenService) *AccountHandler {
	return &AccountHandler{accounts: accounts, tokens: tokens}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	account, err := h.accounts.GetAccount(accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, account)
}

func (h *AccountHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	sessions, err := h.tokens.ListSessions(accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *AccountHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	if err := h.tokens.RevokeSession(r.Context(), accountID, uint(sessionID)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoked", "account_id", accountID, "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "revoked"})
}

// RevokeOtherSessions keeps the session behind the caller's refresh cookie
// alive and revokes every other one.
func (h *AccountHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	refresh := security.GetCookie(r, "refresh_token")
	count, err := h.tokens.RevokeOtherSessions(r.Context(), accountID, refresh)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoked_others", "account_id", accountID, "count", count)
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": count})
}
