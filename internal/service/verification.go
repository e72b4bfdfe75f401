package service

import (
	"time"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/security"
)

// VerificationIssuer mints the two proofs of one verification window: a
// 6-digit code for manual entry and a signed token for the magic link. Both
// share the same expiry; the stored window decides their fate.
type VerificationIssuer struct {
	signer   *security.VerificationSigner
	ttl      time.Duration
	cooldown time.Duration
}

func NewVerificationIssuer(signer *security.VerificationSigner, ttl, cooldown time.Duration) *VerificationIssuer {
	return &VerificationIssuer{signer: signer, ttl: ttl, cooldown: cooldown}
}

// NewWindow opens a fresh window at now. The caller persists it; anything
// previously pending is superseded by that write.
func (i *VerificationIssuer) NewWindow(accountID uint, email string, now time.Time) (domain.PendingVerification, error) {
	code, err := security.NewVerificationCode()
	if err != nil {
		return domain.PendingVerification{}, err
	}
	expiresAt := now.Add(i.ttl)
	token, err := i.signer.Sign(accountID, email, security.PurposeEmailVerification, now, expiresAt)
	if err != nil {
		return domain.PendingVerification{}, err
	}
	return domain.PendingVerification{
		Code:      code,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// CooldownRemaining reports how long a resend must still wait, measured from
// the stored issuance time of the open window. Zero means a resend is
// allowed.
func (i *VerificationIssuer) CooldownRemaining(pending *domain.PendingVerification, now time.Time) time.Duration {
	if pending == nil {
		return 0
	}
	elapsed := now.Sub(pending.IssuedAt)
	if elapsed >= i.cooldown {
		return 0
	}
	return i.cooldown - elapsed
}

// ResetToken mints a stateless password-reset token with the same TTL as
// verification windows. Single-use is enforced by the session revocation the
// reset performs, not by storage.
func (i *VerificationIssuer) ResetToken(accountID uint, email string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.ttl)
	token, err := i.signer.Sign(accountID, email, security.PurposePasswordReset, now, expiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseResetToken validates signature, purpose and expiry.
func (i *VerificationIssuer) ParseResetToken(raw string) (accountID uint, email string, err error) {
	claims, err := i.signer.Parse(raw, security.PurposePasswordReset)
	if err != nil {
		return 0, "", err
	}
	id, err := claims.AccountID()
	if err != nil {
		return 0, "", err
	}
	return id, claims.Email, nil
}
