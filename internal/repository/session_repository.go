package repository

import (
	"errors"
	"time"

	"github.com/resumekit/resumekit/internal/domain"

	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(s *domain.Session) error
	FindValidByHash(hash string) (*domain.Session, error)
	RevokeByHash(hash string) error
	RevokeByAccountID(accountID uint) error
	RevokeByID(accountID, sessionID uint) error
	RevokeOthers(accountID uint, keepHash string) (int64, error)
	ListActiveByAccountID(accountID uint) ([]domain.Session, error)
	CleanupExpired() (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error { return r.db.Create(s).Error }

func (r *GormSessionRepository) FindValidByHash(hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token_hash = ? AND revoked_at IS NULL AND expires_at > ?", hash, time.Now()).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) RevokeByHash(hash string) error {
	now := time.Now()
	return r.db.Model(&domain.Session{}).Where("refresh_token_hash = ? AND revoked_at IS NULL", hash).Update("revoked_at", now).Error
}

func (r *GormSessionRepository) RevokeByAccountID(accountID uint) error {
	now := time.Now()
	return r.db.Model(&domain.Session{}).Where("account_id = ? AND revoked_at IS NULL", accountID).Update("revoked_at", now).Error
}

var ErrSessionNotFound = errors.New("session not found")

// RevokeByID is owner-scoped so one account can never revoke another's
// session by guessing ids.
func (r *GormSessionRepository) RevokeByID(accountID, sessionID uint) error {
	now := time.Now()
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND account_id = ? AND revoked_at IS NULL", sessionID, accountID).
		Update("revoked_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeOthers revokes every active session except the one holding keepHash.
func (r *GormSessionRepository) RevokeOthers(accountID uint, keepHash string) (int64, error) {
	now := time.Now()
	res := r.db.Model(&domain.Session{}).
		Where("account_id = ? AND revoked_at IS NULL AND refresh_token_hash <> ?", accountID, keepHash).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}

func (r *GormSessionRepository) ListActiveByAccountID(accountID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("account_id = ? AND revoked_at IS NULL AND expires_at > ?", accountID, time.Now()).
		Order("created_at desc").Find(&sessions).Error
	return sessions, err
}

func (r *GormSessionRepository) CleanupExpired() (int64, error) {
	res := r.db.Where("expires_at <= ?", time.Now()).Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}
