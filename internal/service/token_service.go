package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/repository"
	"github.com/resumekit/resumekit/internal/security"
)

// TokenService issues the session token triple and tracks refresh tokens by
// peppered hash. Rotation revokes the presented session before minting the
// next one.
type TokenService struct {
	jwtMgr      *security.JWTManager
	sessionRepo repository.SessionRepository
	pepper      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, sessionRepo repository.SessionRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, sessionRepo: sessionRepo, pepper: pepper, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) Issue(account *domain.Account, ua, ip string) (access string, refresh string, csrf string, err error) {
	access, err = s.jwtMgr.SignAccessToken(account.ID, s.accessTTL)
	if err != nil {
		return "", "", "", err
	}
	refresh, err = s.jwtMgr.SignRefreshToken(account.ID, s.refreshTTL)
	if err != nil {
		return "", "", "", err
	}
	hash := security.HashRefreshToken(refresh, s.pepper)
	if err := s.sessionRepo.Create(&domain.Session{
		AccountID:        account.ID,
		RefreshTokenHash: hash,
		UserAgent:        ua,
		IP:               ip,
		ExpiresAt:        time.Now().Add(s.refreshTTL),
	}); err != nil {
		return "", "", "", storeErr("create session", err)
	}
	csrf, err = security.NewCSRFToken()
	if err != nil {
		return "", "", "", err
	}
	return access, refresh, csrf, nil
}

// Rotate exchanges a valid refresh token for a fresh triple. The old session
// is revoked first, so a replayed token finds nothing.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, accountFetcher func(id uint) (*domain.Account, error), ua, ip string) (access string, newRefresh string, csrf string, accountID uint, err error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		observability.RecordRefreshSecurityEvent(ctx, "invalid_token")
		return "", "", "", 0, err
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	session, err := s.sessionRepo.FindValidByHash(hash)
	if err != nil {
		observability.RecordRefreshSecurityEvent(ctx, "unknown_session")
		return "", "", "", 0, err
	}
	if err := s.sessionRepo.RevokeByHash(hash); err != nil {
		return "", "", "", 0, storeErr("revoke session", err)
	}
	id64, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return "", "", "", 0, fmt.Errorf("invalid subject")
	}
	accountID = uint(id64)
	if session.AccountID != accountID {
		observability.RecordRefreshSecurityEvent(ctx, "session_mismatch")
		return "", "", "", 0, fmt.Errorf("session mismatch")
	}
	account, err := accountFetcher(accountID)
	if err != nil {
		return "", "", "", 0, err
	}
	access, newRefresh, csrf, err = s.Issue(account, ua, ip)
	if err != nil {
		return "", "", "", 0, err
	}
	observability.RecordRefreshSecurityEvent(ctx, "rotated")
	return access, newRefresh, csrf, accountID, nil
}

func (s *TokenService) RevokeAll(ctx context.Context, accountID uint, reason string) error {
	if err := s.sessionRepo.RevokeByAccountID(accountID); err != nil {
		return storeErr("revoke sessions", err)
	}
	observability.RecordSessionManagementEvent(ctx, "revoke_all", reason)
	return nil
}

var ErrSessionNotFound = errors.New("session not found")

func (s *TokenService) RevokeSession(ctx context.Context, accountID, sessionID uint) error {
	if err := s.sessionRepo.RevokeByID(accountID, sessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return storeErr("revoke session", err)
	}
	observability.RecordSessionManagementEvent(ctx, "revoke_one", "success")
	return nil
}

// RevokeOtherSessions keeps the session behind the presented refresh token
// and revokes the rest.
func (s *TokenService) RevokeOtherSessions(ctx context.Context, accountID uint, currentRefreshToken string) (int64, error) {
	keepHash := security.HashRefreshToken(currentRefreshToken, s.pepper)
	count, err := s.sessionRepo.RevokeOthers(accountID, keepHash)
	if err != nil {
		return 0, storeErr("revoke other sessions", err)
	}
	observability.RecordSessionRevokedCount(ctx, "revoke_others", count)
	return count, nil
}

func (s *TokenService) ListSessions(accountID uint) ([]domain.Session, error) {
	sessions, err := s.sessionRepo.ListActiveByAccountID(accountID)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}
