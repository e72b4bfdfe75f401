package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/service"
)

// writeServiceError translates service errors into the stable wire codes.
// Anything unrecognized becomes a 500 without leaking internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked     *service.AccountLockedError
		cooldown   *service.CooldownActiveError
		weak       *service.WeakPasswordError
		store      *service.StoreError
		validation *service.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", validation.Msg, nil)
	case errors.Is(err, service.ErrStorageDisabled):
		response.Error(w, r, http.StatusServiceUnavailable, "STORAGE_DISABLED", "photo storage is not configured", nil)
	case errors.As(err, &weak):
		response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet the policy", map[string]any{
			"violations": weak.Violations,
			"strength":   weak.Tier,
		})
	case errors.As(err, &locked):
		response.Error(w, r, http.StatusLocked, "ACCOUNT_LOCKED", "account is temporarily locked", map[string]any{
			"locked_until": locked.Until,
		})
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cooldown.Remaining.Seconds())+1))
		response.Error(w, r, http.StatusTooManyRequests, "COOLDOWN_ACTIVE", "please wait before requesting another verification", map[string]any{
			"retry_after_seconds": int(cooldown.Remaining.Seconds()) + 1,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
	case errors.Is(err, service.ErrEmailNotVerified):
		response.Error(w, r, http.StatusForbidden, "EMAIL_UNVERIFIED", "email address is not verified", nil)
	case errors.Is(err, service.ErrDuplicateEmail):
		response.Error(w, r, http.StatusConflict, "DUPLICATE_EMAIL", "email is already registered", nil)
	case errors.Is(err, service.ErrAlreadyVerified):
		response.Error(w, r, http.StatusConflict, "ALREADY_VERIFIED", "email is already verified", nil)
	case errors.Is(err, service.ErrVerificationExpired):
		response.Error(w, r, http.StatusGone, "VERIFICATION_EXPIRED", "verification window has expired", nil)
	case errors.Is(err, service.ErrInvalidProof):
		response.Error(w, r, http.StatusBadRequest, "INVALID_PROOF", "verification code or token is invalid", nil)
	case errors.Is(err, service.ErrNoLocalCredential):
		response.Error(w, r, http.StatusBadRequest, "NO_LOCAL_CREDENTIAL", "account has no password to change", nil)
	case errors.Is(err, service.ErrPasswordUnchanged):
		response.Error(w, r, http.StatusBadRequest, "PASSWORD_UNCHANGED", "new password must differ from the current one", nil)
	case errors.Is(err, service.ErrAccountNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
	case errors.Is(err, service.ErrResumeNotFound), errors.Is(err, service.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, service.ErrFileTooBig):
		response.Error(w, r, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidFileType):
		response.Error(w, r, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil)
	case errors.As(err, &store):
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "temporary storage failure, retry later", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
