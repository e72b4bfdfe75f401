package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/resumekit/resumekit/internal/http/middleware"
	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/security"
	"github.com/resumekit/resumekit/internal/service"
)

type AuthHandler struct {
	accounts   *service.AccountSecurityService
	tokens     *service.TokenService
	oauth      *service.OAuthService
	guard      service.AuthAbuseGuard
	cookieMgr  *security.CookieManager
	stateKey   string
	refreshTTL time.Duration
}

func NewAuthHandler(
	accounts *service.AccountSecurityService,
	tokens *service.TokenService,
	oauth *service.OAuthService,
	guard service.AuthAbuseGuard,
	cookieMgr *security.CookieManager,
	stateKey string,
	refreshTTL time.Duration,
) *AuthHandler {
	if guard == nil {
		guard = service.NewNoopAuthAbuseGuard()
	}
	return &AuthHandler{
		accounts:   accounts,
		tokens:     tokens,
		oauth:      oauth,
		guard:      guard,
		cookieMgr:  cookieMgr,
		stateKey:   stateKey,
		refreshTTL: refreshTTL,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register", status, time.Since(start))
	}()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	result, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register.success", "account_id", result.AccountID)
	response.JSON(w, r, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	ip := clientIP(r)
	if h.rejectOnCooldown(w, r, service.AuthAbuseScopeLogin, req.Email, ip) {
		status = "failure"
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		status = "failure"
		var locked *service.AccountLockedError
		if errors.Is(err, service.ErrInvalidCredentials) || errors.As(err, &locked) {
			if delay, gErr := h.guard.RegisterFailure(r.Context(), service.AuthAbuseScopeLogin, req.Email, ip); gErr == nil {
				observability.RecordAuthAbuseCooldown(r.Context(), string(service.AuthAbuseScopeLogin), "register_failure", delay)
			}
		}
		// Unknown emails answer exactly like wrong passwords.
		if errors.Is(err, service.ErrAccountNotFound) {
			err = service.ErrInvalidCredentials
		}
		observability.Audit(r, "auth.login.failed", "reason", err.Error())
		writeServiceError(w, r, err)
		return
	}
	if err := h.guard.Reset(r.Context(), service.AuthAbuseScopeLogin, req.Email, ip); err != nil {
		observability.RecordAuthAbuseGuardEvent(r.Context(), string(service.AuthAbuseScopeLogin), "reset", "error")
	}

	access, refresh, csrf, err := h.tokens.Issue(account, r.UserAgent(), ip)
	if err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.SetTokenCookies(w, access, refresh, csrf, h.refreshTTL)
	observability.Audit(r, "auth.login.success", "account_id", account.ID, "provider", "local")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"account":    account,
		"csrf_token": csrf,
		"expires_at": time.Now().Add(h.tokens.AccessTTL()).UTC(),
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) VerifyRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issued, err := h.accounts.IssueVerification(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.verify.issued", "email", req.Email)
	response.JSON(w, r, http.StatusOK, issued)
}

type verifyConfirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyConfirm(w http.ResponseWriter, r *http.Request) {
	var req verifyConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.RedeemVerification(r.Context(), req.Email, strings.TrimSpace(req.Code), strings.TrimSpace(req.Token)); err != nil {
		observability.Audit(r, "auth.verify.failed", "email", req.Email, "reason", err.Error())
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.verify.success", "email", req.Email)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ip := clientIP(r)
	if h.rejectOnCooldown(w, r, service.AuthAbuseScopeForgot, req.Email, ip) {
		return
	}
	// Every request costs a guard attempt so the endpoint cannot be used to
	// probe for accounts at speed.
	if _, err := h.guard.RegisterFailure(r.Context(), service.AuthAbuseScopeForgot, req.Email, ip); err != nil {
		observability.RecordAuthAbuseGuardEvent(r.Context(), string(service.AuthAbuseScopeForgot), "register_failure", "error")
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password.forgot", "email", req.Email)
	// The answer is identical whether or not the account exists.
	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		observability.Audit(r, "auth.password.reset.failed", "reason", err.Error())
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.ClearTokenCookies(w)
	observability.Audit(r, "auth.password.reset.success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		observability.Audit(r, "auth.password.change.failed", "account_id", accountID, "reason", err.Error())
		writeServiceError(w, r, err)
		return
	}
	// Every session including this one was revoked; the client signs in again.
	h.cookieMgr.ClearTokenCookies(w)
	observability.Audit(r, "auth.password.change.success", "account_id", accountID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "refresh", status, time.Since(start))
	}()

	refresh := security.GetCookie(r, "refresh_token")
	if refresh == "" {
		status = "failure"
		observability.RecordAuthRefresh(r.Context(), "failure")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token", nil)
		return
	}
	access, newRefresh, csrf, accountID, err := h.tokens.Rotate(r.Context(), refresh, h.accounts.GetAccount, r.UserAgent(), clientIP(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.refresh.failed", "reason", "invalid_refresh")
		observability.RecordAuthRefresh(r.Context(), "failure")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		return
	}
	h.cookieMgr.SetTokenCookies(w, access, newRefresh, csrf, h.refreshTTL)
	observability.Audit(r, "auth.refresh.success", "account_id", accountID)
	observability.RecordAuthRefresh(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"csrf_token": csrf,
		"expires_at": time.Now().Add(h.tokens.AccessTTL()).UTC(),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		observability.RecordAuthLogout(r.Context(), "failure")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	if err := h.tokens.RevokeAll(r.Context(), accountID, "logout"); err != nil {
		observability.RecordAuthLogout(r.Context(), "failure")
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.ClearTokenCookies(w)
	observability.Audit(r, "auth.logout.success", "account_id", accountID)
	observability.RecordAuthLogout(r.Context(), "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		response.Error(w, r, http.StatusNotFound, "GOOGLE_AUTH_DISABLED", "google sign-in is disabled", nil)
		return
	}
	state, err := security.NewRandomString(24)
	if err != nil {
		observability.RecordAuthLogin(r.Context(), "google", "failure")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to generate oauth state", nil)
		return
	}
	h.cookieMgr.SetStateCookie(w, security.SignState(state, h.stateKey))
	observability.Audit(r, "auth.google.login.redirect")
	http.Redirect(w, r, h.oauth.LoginURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "google_callback", status, time.Since(start))
	}()

	if h.oauth == nil {
		status = "failure"
		response.Error(w, r, http.StatusNotFound, "GOOGLE_AUTH_DISABLED", "google sign-in is disabled", nil)
		return
	}
	queryState := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if queryState == "" || code == "" {
		status = "failure"
		observability.RecordAuthLogin(r.Context(), "google", "failure")
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing state or code", nil)
		return
	}
	state, ok := security.VerifySignedState(security.GetCookie(r, "oauth_state"), h.stateKey)
	if !ok || state != queryState {
		status = "failure"
		observability.Audit(r, "auth.google.callback.failed", "reason", "invalid_state")
		observability.RecordAuthLogin(r.Context(), "google", "failure")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid oauth state", nil)
		return
	}
	// The state is single-use.
	h.cookieMgr.ClearStateCookie(w)

	account, err := h.oauth.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		status = "failure"
		observability.Audit(r, "auth.google.callback.failed", "reason", "oauth_exchange")
		observability.RecordAuthLogin(r.Context(), "google", "failure")
		response.Error(w, r, http.StatusUnauthorized, "OAUTH_FAILED", "google sign-in failed", nil)
		return
	}
	access, refresh, csrf, err := h.tokens.Issue(account, r.UserAgent(), clientIP(r))
	if err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.SetTokenCookies(w, access, refresh, csrf, h.refreshTTL)
	observability.Audit(r, "auth.login.success", "account_id", account.ID, "provider", "google")
	observability.RecordAuthLogin(r.Context(), "google", "success")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"account":    account,
		"csrf_token": csrf,
		"expires_at": time.Now().Add(h.tokens.AccessTTL()).UTC(),
	})
}

// rejectOnCooldown answers 429 with Retry-After while the abuse guard has an
// active cooldown for this identity or source address.
func (h *AuthHandler) rejectOnCooldown(w http.ResponseWriter, r *http.Request, scope service.AuthAbuseScope, identity, ip string) bool {
	delay, err := h.guard.Check(r.Context(), scope, identity, ip)
	if err != nil {
		// The guard is advisory; auth still enforces lockout on its own.
		observability.RecordAuthAbuseGuardEvent(r.Context(), string(scope), "check", "error")
		return false
	}
	if delay <= 0 {
		return false
	}
	observability.RecordAuthAbuseGuardEvent(r.Context(), string(scope), "check", "rejected")
	seconds := int(delay.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmtInt(seconds))
	response.Error(w, r, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "try again later", map[string]any{
		"retry_after_seconds": seconds,
	})
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed json body", nil)
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

func fmtInt(n int) string {
	return strconv.Itoa(n)
}
