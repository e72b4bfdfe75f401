package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/repository"
	"github.com/resumekit/resumekit/internal/security"
)

// lockStateRetries bounds the CAS loop when concurrent failures race on the
// attempt counter.
const lockStateRetries = 3

// AccountSecurityService owns the account state machine: registration,
// credential checks with lockout accounting, and the email verification
// window. Session issuance is delegated to TokenService.
type AccountSecurityService struct {
	cfg      *config.Config
	accounts repository.AccountRepository
	issuer   *VerificationIssuer
	notifier EmailNotifier
	tokenSvc *TokenService
	now      func() time.Time
}

func NewAccountSecurityService(
	cfg *config.Config,
	accounts repository.AccountRepository,
	issuer *VerificationIssuer,
	notifier EmailNotifier,
	tokenSvc *TokenService,
) *AccountSecurityService {
	return &AccountSecurityService{
		cfg:      cfg,
		accounts: accounts,
		issuer:   issuer,
		notifier: notifier,
		tokenSvc: tokenSvc,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterResult struct {
	AccountID uint         `json:"account_id"`
	Tier      StrengthTier `json:"password_strength"`
}

type VerificationIssued struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Register creates an unverified local account and opens its first
// verification window. It never signs the caller in.
func (s *AccountSecurityService) Register(ctx context.Context, name, email, password string) (*RegisterResult, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, validationErr("name is required")
	}

	policy := EvaluatePassword(password)
	observability.RecordPasswordPolicyEvaluation(ctx, string(policy.Tier), len(policy.Violations))
	if !policy.Valid() {
		observability.RecordAuthRegister(ctx, "weak_password")
		return nil, &WeakPasswordError{Violations: policy.Violations, Tier: policy.Tier}
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &domain.Account{
		Email:        email,
		Name:         name,
		Origin:       domain.AccountOriginLocal,
		PasswordHash: hash,
		PasswordHistory: []domain.PasswordHistoryEntry{
			{Hash: hash, SetAt: now},
		},
	}
	if err := s.accounts.Create(account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			observability.RecordAuthRegister(ctx, "duplicate_email")
			return nil, ErrDuplicateEmail
		}
		observability.RecordAuthRegister(ctx, "store_error")
		return nil, storeErr("create account", err)
	}

	if err := s.openVerificationWindow(ctx, account); err != nil {
		// The account exists; the caller can request a resend.
		observability.RecordVerificationEvent(ctx, "issue", "error")
		return nil, err
	}

	observability.RecordAuthRegister(ctx, "success")
	return &RegisterResult{AccountID: account.ID, Tier: policy.Tier}, nil
}

// Authenticate runs the ordered credential checks. The lock gate fires
// before any password comparison, so a locked account leaks nothing about
// credential correctness.
func (s *AccountSecurityService) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	email = normalizeEmail(email)
	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthLogin(ctx, "local", "not_found")
			return nil, ErrAccountNotFound
		}
		return nil, storeErr("find account", err)
	}

	now := s.now()
	if account.Locked(now) {
		observability.RecordAuthLogin(ctx, "local", "locked")
		return nil, &AccountLockedError{Until: *account.LockedUntil}
	}

	if account.PasswordHash == "" || !security.VerifyPassword(account.PasswordHash, password) {
		observability.RecordAuthLogin(ctx, "local", "invalid_credentials")
		return nil, s.recordFailedAttempt(ctx, account)
	}

	if !account.Verified {
		observability.RecordAuthLogin(ctx, "local", "unverified")
		return nil, ErrEmailNotVerified
	}

	if err := s.accounts.RecordLoginSuccess(account.ID, now); err != nil {
		return nil, storeErr("record login success", err)
	}
	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		observability.RecordLockoutEvent(ctx, "reset")
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	observability.RecordAuthLogin(ctx, "local", "success")
	return account, nil
}

// recordFailedAttempt applies the pure lock transition with a CAS on the
// counter the caller read, retrying on concurrent writers. The returned
// error is what the login attempt reports: AccountLocked when this failure
// crossed the threshold, InvalidCredentials otherwise.
func (s *AccountSecurityService) recordFailedAttempt(ctx context.Context, account *domain.Account) error {
	current := account
	for i := 0; i < lockStateRetries; i++ {
		now := s.now()
		prev := LockState{FailedAttempts: current.FailedAttempts, LockedUntil: current.LockedUntil}
		next := NextLockState(prev, s.cfg.LockoutThreshold, s.cfg.LockoutDuration, now)

		err := s.accounts.ApplyLockState(current.ID, prev.FailedAttempts, next.FailedAttempts, next.LockedUntil)
		if err == nil {
			if next.Locked(now) {
				observability.RecordLockoutEvent(ctx, "locked")
				return &AccountLockedError{Until: *next.LockedUntil}
			}
			observability.RecordLockoutEvent(ctx, "counted")
			return ErrInvalidCredentials
		}
		if !errors.Is(err, repository.ErrStaleAccount) {
			return storeErr("apply lock state", err)
		}

		reloaded, loadErr := s.accounts.FindByID(current.ID)
		if loadErr != nil {
			return storeErr("reload account", loadErr)
		}
		if reloaded.Locked(s.now()) {
			// A concurrent failure crossed the threshold first.
			return &AccountLockedError{Until: *reloaded.LockedUntil}
		}
		current = reloaded
	}
	// Counting lost every race; the attempt still failed.
	return ErrInvalidCredentials
}

// IssueVerification opens (or reopens) a verification window, honoring the
// resend cooldown measured from the stored issuance time.
func (s *AccountSecurityService) IssueVerification(ctx context.Context, email string) (*VerificationIssued, error) {
	email = normalizeEmail(email)
	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeErr("find account", err)
	}
	if account.Verified {
		observability.RecordVerificationEvent(ctx, "issue", "already_verified")
		return nil, ErrAlreadyVerified
	}

	if remaining := s.issuer.CooldownRemaining(account.PendingVerification(), s.now()); remaining > 0 {
		observability.RecordVerificationEvent(ctx, "issue", "cooldown")
		return nil, &CooldownActiveError{Remaining: remaining}
	}

	if err := s.openVerificationWindow(ctx, account); err != nil {
		observability.RecordVerificationEvent(ctx, "issue", "error")
		return nil, err
	}
	observability.RecordVerificationEvent(ctx, "issue", "sent")
	return &VerificationIssued{ExpiresAt: account.PendingVerification().ExpiresAt}, nil
}

func (s *AccountSecurityService) openVerificationWindow(ctx context.Context, account *domain.Account) error {
	now := s.now()
	pending, err := s.issuer.NewWindow(account.ID, account.Email, now)
	if err != nil {
		return err
	}
	if err := s.accounts.SetPendingVerification(account.ID, pending); err != nil {
		return storeErr("set pending verification", err)
	}
	account.VerificationCode = &pending.Code
	account.VerificationToken = &pending.Token
	account.VerificationIssuedAt = &pending.IssuedAt
	account.VerificationExpiresAt = &pending.ExpiresAt

	link, err := BuildProofLink(s.cfg.VerifyLinkBaseURL, pending.Token)
	if err != nil {
		return err
	}
	return s.notifier.SendVerification(ctx, VerificationNotification{
		AccountID: account.ID,
		Email:     account.Email,
		Code:      pending.Code,
		Token:     pending.Token,
		ExpiresAt: pending.ExpiresAt,
		LinkURL:   link,
	})
}

// RedeemVerification accepts either proof of the open window. The stored
// expiry is authoritative; the token must additionally carry a valid
// signature bound to this account and match the stored token byte for byte.
func (s *AccountSecurityService) RedeemVerification(ctx context.Context, email, code, token string) error {
	email = normalizeEmail(email)
	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeErr("find account", err)
	}
	if account.Verified {
		observability.RecordVerificationEvent(ctx, "redeem", "already_verified")
		return ErrAlreadyVerified
	}

	pending := account.PendingVerification()
	if pending == nil {
		observability.RecordVerificationEvent(ctx, "redeem", "no_window")
		return ErrInvalidProof
	}
	now := s.now()
	if now.After(pending.ExpiresAt) {
		observability.RecordVerificationEvent(ctx, "redeem", "expired")
		return ErrVerificationExpired
	}

	if !s.proofMatches(account, pending, code, token) {
		observability.RecordVerificationEvent(ctx, "redeem", "invalid_proof")
		return ErrInvalidProof
	}

	if err := s.accounts.ConsumePendingVerification(account.ID, pending.Token, now); err != nil {
		if errors.Is(err, repository.ErrStaleAccount) {
			return s.redeemRaceOutcome(ctx, account.ID)
		}
		return storeErr("consume verification", err)
	}
	observability.RecordVerificationEvent(ctx, "redeem", "success")
	return nil
}

// redeemRaceOutcome names what a losing redeem ran into: a concurrent redeem
// already verified the account, or a concurrent resend superseded the window
// the proof belonged to.
func (s *AccountSecurityService) redeemRaceOutcome(ctx context.Context, accountID uint) error {
	reloaded, err := s.accounts.FindByID(accountID)
	if err != nil {
		return storeErr("reload account", err)
	}
	if reloaded.Verified {
		observability.RecordVerificationEvent(ctx, "redeem", "already_verified")
		return ErrAlreadyVerified
	}
	observability.RecordVerificationEvent(ctx, "redeem", "invalid_proof")
	return ErrInvalidProof
}

func (s *AccountSecurityService) proofMatches(account *domain.Account, pending *domain.PendingVerification, code, token string) bool {
	if code != "" && subtle.ConstantTimeCompare([]byte(code), []byte(pending.Code)) == 1 {
		return true
	}
	if token == "" || token != pending.Token {
		return false
	}
	claims, err := s.issuer.signer.Parse(token, security.PurposeEmailVerification)
	if err != nil {
		return false
	}
	id, err := claims.AccountID()
	if err != nil || id != account.ID || !strings.EqualFold(claims.Email, account.Email) {
		return false
	}
	return true
}

// ExternalSignIn finds or creates an account for an identity the external
// provider already verified. External accounts carry no password hash.
func (s *AccountSecurityService) ExternalSignIn(ctx context.Context, email, name string) (*domain.Account, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, storeErr("find account", err)
	}

	now := s.now()
	account = &domain.Account{
		Email:      email,
		Name:       strings.TrimSpace(name),
		Origin:     domain.AccountOriginExternal,
		Verified:   true,
		VerifiedAt: &now,
	}
	if err := s.accounts.Create(account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Lost a creation race; the other writer's account wins.
			return s.findExisting(email)
		}
		return nil, storeErr("create external account", err)
	}
	return account, nil
}

// GetAccount loads an account by id for authenticated read paths.
func (s *AccountSecurityService) GetAccount(accountID uint) (*domain.Account, error) {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeErr("find account", err)
	}
	return account, nil
}

func (s *AccountSecurityService) findExisting(email string) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		return nil, storeErr("find account", err)
	}
	return account, nil
}

// ForgotPassword answers uniformly whether or not the account exists, so the
// endpoint cannot be used for enumeration.
func (s *AccountSecurityService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	account, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil
		}
		return storeErr("find account", err)
	}
	if account.PasswordHash == "" {
		// External accounts have no password to reset.
		return nil
	}

	now := s.now()
	token, expiresAt, err := s.issuer.ResetToken(account.ID, account.Email, now)
	if err != nil {
		return err
	}
	link, err := BuildProofLink(s.cfg.ResetLinkBaseURL, token)
	if err != nil {
		return err
	}
	return s.notifier.SendPasswordReset(ctx, PasswordResetNotification{
		AccountID: account.ID,
		Email:     account.Email,
		Token:     token,
		ExpiresAt: expiresAt,
		LinkURL:   link,
	})
}

// ResetPassword redeems a reset token, applies the policy, swaps the hash
// and revokes every session.
func (s *AccountSecurityService) ResetPassword(ctx context.Context, token, newPassword string) error {
	accountID, email, err := s.issuer.ParseResetToken(strings.TrimSpace(token))
	if err != nil {
		return ErrInvalidProof
	}

	policy := EvaluatePassword(newPassword)
	observability.RecordPasswordPolicyEvaluation(ctx, string(policy.Tier), len(policy.Violations))
	if !policy.Valid() {
		return &WeakPasswordError{Violations: policy.Violations, Tier: policy.Tier}
	}

	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrInvalidProof
		}
		return storeErr("find account", err)
	}
	if !strings.EqualFold(account.Email, email) {
		return ErrInvalidProof
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(account.ID, hash, s.now()); err != nil {
		return storeErr("update password", err)
	}
	return s.tokenSvc.RevokeAll(ctx, account.ID, "password_reset")
}

// ChangePassword verifies the current credential before swapping.
func (s *AccountSecurityService) ChangePassword(ctx context.Context, accountID uint, currentPassword, newPassword string) error {
	policy := EvaluatePassword(newPassword)
	observability.RecordPasswordPolicyEvaluation(ctx, string(policy.Tier), len(policy.Violations))
	if !policy.Valid() {
		return &WeakPasswordError{Violations: policy.Violations, Tier: policy.Tier}
	}

	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return storeErr("find account", err)
	}
	if account.PasswordHash == "" {
		return ErrNoLocalCredential
	}
	if !security.VerifyPassword(account.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return ErrPasswordUnchanged
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(account.ID, hash, s.now()); err != nil {
		return storeErr("update password", err)
	}
	return s.tokenSvc.RevokeAll(ctx, account.ID, "password_change")
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationErr("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return validationErr("invalid email")
	}
	return nil
}
