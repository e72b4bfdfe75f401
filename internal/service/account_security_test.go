package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/repository"
)

func TestRegisterOpensVerificationWindow(t *testing.T) {
	f := newAccountSecurityFixture(t)
	result := f.register(t, "alice@example.com")

	if result.AccountID == 0 {
		t.Fatal("expected a persisted account id")
	}
	if result.Tier != StrengthStrong {
		t.Fatalf("tier = %q, want strong", result.Tier)
	}

	sent := f.notifier.lastVerification(t)
	if len(sent.Code) != 6 {
		t.Fatalf("code length = %d, want 6", len(sent.Code))
	}
	if sent.Token == "" {
		t.Fatal("expected a signed token in the notification")
	}
	wantExpiry := f.clock.Now().Add(f.cfg.VerificationTTL)
	if !sent.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires at %v, want %v", sent.ExpiresAt, wantExpiry)
	}

	account, err := f.accounts.FindByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.Verified {
		t.Fatal("freshly registered account must not be verified")
	}
	if account.PendingVerification() == nil {
		t.Fatal("expected an open verification window")
	}
	if account.Origin != domain.AccountOriginLocal {
		t.Fatalf("origin = %q, want local", account.Origin)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "bob@example.com")

	_, err := f.svc.Register(context.Background(), "Other Bob", "Bob@Example.com", testStrongPassword)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newAccountSecurityFixture(t)

	_, err := f.svc.Register(context.Background(), "Carol", "carol@example.com", "short")
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("err = %v, want WeakPasswordError", err)
	}
	if len(weak.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
	if weak.Tier == "" {
		t.Fatal("expected the tier to be reported even on rejection")
	}

	if _, err := f.accounts.FindByEmail("carol@example.com"); err == nil {
		t.Fatal("rejected registration must not create an account")
	}
}

func TestAuthenticateOrderedChecks(t *testing.T) {
	f := newAccountSecurityFixture(t)

	if _, err := f.svc.Authenticate(context.Background(), "ghost@example.com", testStrongPassword); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown email err = %v, want ErrAccountNotFound", err)
	}

	f.register(t, "dave@example.com")
	if _, err := f.svc.Authenticate(context.Background(), "dave@example.com", testStrongPassword); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified err = %v, want ErrEmailNotVerified", err)
	}

	code := f.notifier.lastVerification(t).Code
	if err := f.svc.RedeemVerification(context.Background(), "dave@example.com", code, ""); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	account, err := f.svc.Authenticate(context.Background(), "DAVE@example.com", testStrongPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if account.LastLoginAt == nil || !account.LastLoginAt.Equal(f.clock.Now()) {
		t.Fatalf("last login at = %v, want %v", account.LastLoginAt, f.clock.Now())
	}
}

func TestAuthenticateLockoutAfterFiveFailures(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.registerVerified(t, "eve@example.com")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := f.svc.Authenticate(ctx, "eve@example.com", "Wrong#Passw0rd!!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d err = %v, want ErrInvalidCredentials", i, err)
		}
	}

	_, err := f.svc.Authenticate(ctx, "eve@example.com", "Wrong#Passw0rd!!")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("fifth failure err = %v, want AccountLockedError", err)
	}
	wantUntil := f.clock.Now().Add(f.cfg.LockoutDuration)
	if !locked.Until.Equal(wantUntil) {
		t.Fatalf("locked until %v, want %v", locked.Until, wantUntil)
	}

	// Correct password while locked still refuses, reporting only the lock.
	_, err = f.svc.Authenticate(ctx, "eve@example.com", testStrongPassword)
	if !errors.As(err, &locked) {
		t.Fatalf("locked login err = %v, want AccountLockedError", err)
	}

	f.clock.Advance(f.cfg.LockoutDuration + time.Minute)
	account, err := f.svc.Authenticate(ctx, "eve@example.com", testStrongPassword)
	if err != nil {
		t.Fatalf("login after lock elapsed: %v", err)
	}
	if account.FailedAttempts != 0 || account.LockedUntil != nil {
		t.Fatalf("counters not reset: attempts=%d locked_until=%v", account.FailedAttempts, account.LockedUntil)
	}
}

func TestAuthenticateFailureAfterStaleLockRestartsCount(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.registerVerified(t, "frank@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.svc.Authenticate(ctx, "frank@example.com", "Wrong#Passw0rd!!")
	}
	f.clock.Advance(f.cfg.LockoutDuration + time.Minute)

	if _, err := f.svc.Authenticate(ctx, "frank@example.com", "Wrong#Passw0rd!!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("post-lock failure err = %v, want ErrInvalidCredentials", err)
	}
	account, err := f.accounts.FindByEmail("frank@example.com")
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.FailedAttempts != 1 {
		t.Fatalf("failed attempts = %d, want 1 after stale lock", account.FailedAttempts)
	}
	if account.LockedUntil != nil {
		t.Fatalf("locked until = %v, want nil after stale lock", account.LockedUntil)
	}
}

func TestIssueVerificationCooldown(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "grace@example.com")
	ctx := context.Background()
	firstCode := f.notifier.lastVerification(t).Code

	_, err := f.svc.IssueVerification(ctx, "grace@example.com")
	var cooldown *CooldownActiveError
	if !errors.As(err, &cooldown) {
		t.Fatalf("immediate resend err = %v, want CooldownActiveError", err)
	}
	if cooldown.Remaining <= 0 || cooldown.Remaining > f.cfg.VerificationCooldown {
		t.Fatalf("remaining = %v, want within (0, %v]", cooldown.Remaining, f.cfg.VerificationCooldown)
	}

	f.clock.Advance(f.cfg.VerificationCooldown + time.Second)
	issued, err := f.svc.IssueVerification(ctx, "grace@example.com")
	if err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	wantExpiry := f.clock.Now().Add(f.cfg.VerificationTTL)
	if !issued.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("new window expires %v, want %v", issued.ExpiresAt, wantExpiry)
	}

	// The resend supersedes the previous window; the old code is dead.
	if err := f.svc.RedeemVerification(ctx, "grace@example.com", firstCode, ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("old code err = %v, want ErrInvalidProof", err)
	}
	newCode := f.notifier.lastVerification(t).Code
	if err := f.svc.RedeemVerification(ctx, "grace@example.com", newCode, ""); err != nil {
		t.Fatalf("new code redeem: %v", err)
	}
}

func TestIssueVerificationAlreadyVerified(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.registerVerified(t, "heidi@example.com")

	if _, err := f.svc.IssueVerification(context.Background(), "heidi@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("err = %v, want ErrAlreadyVerified", err)
	}
}

func TestRedeemVerificationByToken(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "ivan@example.com")
	ctx := context.Background()
	token := f.notifier.lastVerification(t).Token

	if err := f.svc.RedeemVerification(ctx, "ivan@example.com", "", token); err != nil {
		t.Fatalf("token redeem: %v", err)
	}

	account, err := f.accounts.FindByEmail("ivan@example.com")
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if !account.Verified || account.VerifiedAt == nil {
		t.Fatal("account must be verified after redeem")
	}
	if account.PendingVerification() != nil {
		t.Fatal("verification window must be cleared after redeem")
	}

	// Redemption is single-use.
	if err := f.svc.RedeemVerification(ctx, "ivan@example.com", "", token); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("second redeem err = %v, want ErrAlreadyVerified", err)
	}
}

// resendRacingAccounts injects a verification resend between the proof check
// and the conditional consume, the interleaving where a redeem validated
// against a window that a resend then replaces.
type resendRacingAccounts struct {
	repository.AccountRepository
	once   sync.Once
	resend func()
}

func (r *resendRacingAccounts) ConsumePendingVerification(accountID uint, token string, now time.Time) error {
	r.once.Do(r.resend)
	return r.AccountRepository.ConsumePendingVerification(accountID, token, now)
}

func TestRedeemVerificationLosesToConcurrentResend(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "nina@example.com")
	ctx := context.Background()
	firstCode := f.notifier.lastVerification(t).Code

	raced := &resendRacingAccounts{AccountRepository: f.accounts}
	raced.resend = func() {
		f.clock.Advance(f.cfg.VerificationCooldown + time.Second)
		if _, err := f.svc.IssueVerification(ctx, "nina@example.com"); err != nil {
			t.Errorf("racing resend: %v", err)
		}
	}
	f.svc.accounts = raced

	// The superseded code must not verify the account or destroy the new window.
	if err := f.svc.RedeemVerification(ctx, "nina@example.com", firstCode, ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("superseded redeem err = %v, want ErrInvalidProof", err)
	}
	account, err := f.accounts.FindByEmail("nina@example.com")
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if account.Verified {
		t.Fatal("superseded proof must not verify the account")
	}
	if account.PendingVerification() == nil {
		t.Fatal("the resend's window must survive the losing redeem")
	}

	// The resend's own proof still redeems.
	secondCode := f.notifier.lastVerification(t).Code
	if err := f.svc.RedeemVerification(ctx, "nina@example.com", secondCode, ""); err != nil {
		t.Fatalf("redeem with current code: %v", err)
	}
}

func TestRedeemVerificationExpired(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "judy@example.com")
	code := f.notifier.lastVerification(t).Code

	f.clock.Advance(f.cfg.VerificationTTL + time.Second)
	if err := f.svc.RedeemVerification(context.Background(), "judy@example.com", code, ""); !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("err = %v, want ErrVerificationExpired", err)
	}
}

func TestRedeemVerificationRejectsWrongProofs(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.register(t, "kim@example.com")
	kimToken := f.notifier.lastVerification(t).Token
	f.register(t, "leo@example.com")
	ctx := context.Background()

	if err := f.svc.RedeemVerification(ctx, "leo@example.com", "000000", ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("wrong code err = %v, want ErrInvalidProof", err)
	}
	// A valid token for a different account never redeems this one.
	if err := f.svc.RedeemVerification(ctx, "leo@example.com", "", kimToken); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("foreign token err = %v, want ErrInvalidProof", err)
	}
	if err := f.svc.RedeemVerification(ctx, "leo@example.com", "", ""); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("empty proofs err = %v, want ErrInvalidProof", err)
	}
}

func TestExternalSignInFindOrCreate(t *testing.T) {
	f := newAccountSecurityFixture(t)
	ctx := context.Background()

	created, err := f.svc.ExternalSignIn(ctx, "mia@example.com", "Mia")
	if err != nil {
		t.Fatalf("external sign in: %v", err)
	}
	if !created.Verified || created.Origin != domain.AccountOriginExternal {
		t.Fatalf("external account verified=%v origin=%q", created.Verified, created.Origin)
	}
	if created.PasswordHash != "" {
		t.Fatal("external account must carry no password hash")
	}

	again, err := f.svc.ExternalSignIn(ctx, "MIA@example.com", "Mia Renamed")
	if err != nil {
		t.Fatalf("repeat sign in: %v", err)
	}
	if again.ID != created.ID {
		t.Fatalf("repeat sign in created a new account: %d != %d", again.ID, created.ID)
	}
}

func TestForgotPasswordSilentOnUnknownAndExternal(t *testing.T) {
	f := newAccountSecurityFixture(t)
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if _, err := f.svc.ExternalSignIn(ctx, "ext@example.com", "Ext"); err != nil {
		t.Fatalf("external sign in: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "ext@example.com"); err != nil {
		t.Fatalf("external forgot: %v", err)
	}
	if f.notifier.resetCount() != 0 {
		t.Fatalf("reset notifications = %d, want 0", f.notifier.resetCount())
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAccountSecurityFixture(t)
	accountID := f.registerVerified(t, "nina@example.com")
	ctx := context.Background()

	account, err := f.accounts.FindByID(accountID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if _, _, _, err := f.tokenSvc.Issue(account, "test-agent", "127.0.0.1"); err != nil {
		t.Fatalf("issue session: %v", err)
	}

	if err := f.svc.ForgotPassword(ctx, "nina@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	reset := f.notifier.lastReset(t)
	if reset.Token == "" {
		t.Fatal("expected a reset token")
	}

	const newPassword = "N3w#Secret!Pass9"
	if err := f.svc.ResetPassword(ctx, reset.Token, newPassword); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, "nina@example.com", testStrongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.svc.Authenticate(ctx, "nina@example.com", newPassword); err != nil {
		t.Fatalf("new password: %v", err)
	}

	sessions, err := f.tokenSvc.ListSessions(accountID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("active sessions after reset = %d, want 0", len(sessions))
	}

	history, err := f.accounts.PasswordHistory(accountID)
	if err != nil {
		t.Fatalf("password history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
}

func TestResetPasswordRejectsBadToken(t *testing.T) {
	f := newAccountSecurityFixture(t)
	f.registerVerified(t, "olga@example.com")
	ctx := context.Background()

	if err := f.svc.ResetPassword(ctx, "not-a-token", "N3w#Secret!Pass9"); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("garbage token err = %v, want ErrInvalidProof", err)
	}

	// An expired reset token fails the signature check's expiry validation.
	if err := f.svc.ForgotPassword(ctx, "olga@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	token := f.notifier.lastReset(t).Token
	f.clock.Advance(f.cfg.VerificationTTL + time.Minute)
	if err := f.svc.ResetPassword(ctx, token, "N3w#Secret!Pass9"); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expired token err = %v, want ErrInvalidProof", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newAccountSecurityFixture(t)
	accountID := f.registerVerified(t, "pete@example.com")
	ctx := context.Background()
	const newPassword = "An0ther#Pass!w0rd"

	if err := f.svc.ChangePassword(ctx, accountID, "Wrong#Passw0rd!!", newPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current err = %v, want ErrInvalidCredentials", err)
	}
	if err := f.svc.ChangePassword(ctx, accountID, testStrongPassword, testStrongPassword); !errors.Is(err, ErrPasswordUnchanged) {
		t.Fatalf("same password err = %v, want ErrPasswordUnchanged", err)
	}
	if err := f.svc.ChangePassword(ctx, accountID, testStrongPassword, "weak"); err == nil {
		t.Fatal("weak replacement must be rejected")
	}
	if err := f.svc.ChangePassword(ctx, accountID, testStrongPassword, newPassword); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "pete@example.com", newPassword); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePasswordExternalAccount(t *testing.T) {
	f := newAccountSecurityFixture(t)
	account, err := f.svc.ExternalSignIn(context.Background(), "quinn@example.com", "Quinn")
	if err != nil {
		t.Fatalf("external sign in: %v", err)
	}
	err = f.svc.ChangePassword(context.Background(), account.ID, "anything", testStrongPassword)
	if !errors.Is(err, ErrNoLocalCredential) {
		t.Fatalf("err = %v, want ErrNoLocalCredential", err)
	}
}
