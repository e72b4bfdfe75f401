package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/database"
	"github.com/resumekit/resumekit/internal/repository"
	"github.com/resumekit/resumekit/internal/security"
)

const (
	testVerificationSecret = "verification-secret-0123456789abcdef"
	testAccessSecret       = "access-secret-0123456789abcdef-xx"
	testRefreshSecret      = "refresh-secret-0123456789abcdef-x"
	testPepper             = "pepper-0123456789"
	testStrongPassword     = "Str0ng#Passw0rd!"
)

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testClock lets the tests step through cooldowns, expiries and lock windows
// without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// capturingNotifier records what would have been emailed so the tests can
// redeem the exact proofs that were issued.
type capturingNotifier struct {
	mu            sync.Mutex
	verifications []VerificationNotification
	resets        []PasswordResetNotification
}

func (n *capturingNotifier) SendVerification(_ context.Context, v VerificationNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, v)
	return nil
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, r PasswordResetNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, r)
	return nil
}

func (n *capturingNotifier) lastVerification(t *testing.T) VerificationNotification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.verifications) == 0 {
		t.Fatal("no verification notification was sent")
	}
	return n.verifications[len(n.verifications)-1]
}

func (n *capturingNotifier) lastReset(t *testing.T) PasswordResetNotification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("no password reset notification was sent")
	}
	return n.resets[len(n.resets)-1]
}

func (n *capturingNotifier) resetCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resets)
}

type accountSecurityFixture struct {
	svc      *AccountSecurityService
	tokenSvc *TokenService
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	notifier *capturingNotifier
	clock    *testClock
	cfg      *config.Config
}

func newAccountSecurityFixture(t *testing.T) *accountSecurityFixture {
	t.Helper()
	db := newServiceDBForTest(t)

	cfg := &config.Config{
		LockoutThreshold:     5,
		LockoutDuration:      2 * time.Hour,
		VerificationTTL:      5 * time.Minute,
		VerificationCooldown: 60 * time.Second,
		VerifyLinkBaseURL:    "http://localhost:3000/verify-email",
		ResetLinkBaseURL:     "http://localhost:3000/reset-password",
	}

	accounts := repository.NewAccountRepository(db)
	sessions := repository.NewSessionRepository(db)
	signer := security.NewVerificationSigner("resumekit", testVerificationSecret)
	issuer := NewVerificationIssuer(signer, cfg.VerificationTTL, cfg.VerificationCooldown)
	jwtMgr := security.NewJWTManager("resumekit", "resumekit-api", testAccessSecret, testRefreshSecret)
	tokenSvc := NewTokenService(jwtMgr, sessions, testPepper, 15*time.Minute, 168*time.Hour)
	notifier := &capturingNotifier{}

	svc := NewAccountSecurityService(cfg, accounts, issuer, notifier, tokenSvc)
	clock := newTestClock()
	svc.now = clock.Now

	return &accountSecurityFixture{
		svc:      svc,
		tokenSvc: tokenSvc,
		accounts: accounts,
		sessions: sessions,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

func (f *accountSecurityFixture) register(t *testing.T, email string) *RegisterResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), "Test User", email, testStrongPassword)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return result
}

func (f *accountSecurityFixture) registerVerified(t *testing.T, email string) uint {
	t.Helper()
	result := f.register(t, email)
	code := f.notifier.lastVerification(t).Code
	if err := f.svc.RedeemVerification(context.Background(), email, code, ""); err != nil {
		t.Fatalf("redeem verification for %s: %v", email, err)
	}
	return result.AccountID
}
