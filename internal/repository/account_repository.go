package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	// ErrStaleAccount means a conditional update matched no row because the
	// account changed underneath us. Callers reload and retry.
	ErrStaleAccount = errors.New("account state changed concurrently")
)

type AccountRepository interface {
	Create(account *domain.Account) error
	FindByID(id uint) (*domain.Account, error)
	FindByEmail(email string) (*domain.Account, error)
	SetPendingVerification(accountID uint, pending domain.PendingVerification) error
	ConsumePendingVerification(accountID uint, token string, now time.Time) error
	ApplyLockState(accountID uint, expectedAttempts, attempts int, lockedUntil *time.Time) error
	RecordLoginSuccess(accountID uint, now time.Time) error
	UpdatePassword(accountID uint, hash string, now time.Time) error
	PasswordHistory(accountID uint) ([]domain.PasswordHistoryEntry, error)
}

type GormAccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) Create(account *domain.Account) error {
	if err := r.db.Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(context.Background(), "account", "create", "duplicate")
			return ErrDuplicateEmail
		}
		observability.RecordRepositoryOperation(context.Background(), "account", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "create", "success")
	return nil
}

func (r *GormAccountRepository) FindByID(id uint) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *GormAccountRepository) FindByEmail(email string) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.Where("email = ?", email).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// SetPendingVerification writes the whole verification quartet in one update,
// replacing any previous window. Earlier proofs become unredeemable because
// redemption compares against these stored values.
func (r *GormAccountRepository) SetPendingVerification(accountID uint, pending domain.PendingVerification) error {
	res := r.db.Model(&domain.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"verification_code":       pending.Code,
			"verification_token":      pending.Token,
			"verification_issued_at":  pending.IssuedAt,
			"verification_expires_at": pending.ExpiresAt,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "set_pending_verification", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "account", "set_pending_verification", "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "set_pending_verification", "success")
	return nil
}

// ConsumePendingVerification clears the verification quartet and marks the
// account verified, but only while the window whose token the caller
// validated is still the stored one. A concurrent redeem or a resend that
// replaced the window leaves zero rows matched and returns ErrStaleAccount,
// which keeps redemption single-use and superseded proofs unredeemable.
func (r *GormAccountRepository) ConsumePendingVerification(accountID uint, token string, now time.Time) error {
	res := r.db.Model(&domain.Account{}).
		Where("id = ? AND verification_token = ?", accountID, token).
		Updates(map[string]any{
			"verified":                true,
			"verified_at":             now,
			"verification_code":       nil,
			"verification_token":      nil,
			"verification_issued_at":  nil,
			"verification_expires_at": nil,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "consume_verification", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "account", "consume_verification", "stale")
		return ErrStaleAccount
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "consume_verification", "success")
	return nil
}

// ApplyLockState is a compare-and-swap on the failure counter: the update only
// lands if failed_attempts still equals the value the caller read. Two logins
// failing at once therefore count as two, not one.
func (r *GormAccountRepository) ApplyLockState(accountID uint, expectedAttempts, attempts int, lockedUntil *time.Time) error {
	res := r.db.Model(&domain.Account{}).
		Where("id = ? AND failed_attempts = ?", accountID, expectedAttempts).
		Updates(map[string]any{
			"failed_attempts": attempts,
			"locked_until":    lockedUntil,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "apply_lock_state", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "account", "apply_lock_state", "stale")
		return ErrStaleAccount
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "apply_lock_state", "success")
	return nil
}

func (r *GormAccountRepository) RecordLoginSuccess(accountID uint, now time.Time) error {
	res := r.db.Model(&domain.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"last_login_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdatePassword swaps the hash and appends the new hash to the history in
// one transaction so the history never misses an entry.
func (r *GormAccountRepository) UpdatePassword(accountID uint, hash string, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Account{}).
			Where("id = ?", accountID).
			Update("password_hash", hash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return tx.Create(&domain.PasswordHistoryEntry{
			AccountID: accountID,
			Hash:      hash,
			SetAt:     now,
		}).Error
	})
}

func (r *GormAccountRepository) PasswordHistory(accountID uint) ([]domain.PasswordHistoryEntry, error) {
	var entries []domain.PasswordHistoryEntry
	err := r.db.Where("account_id = ?", accountID).Order("set_at asc, id asc").Find(&entries).Error
	return entries, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
