package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/resumekit/resumekit/internal/domain"
)

func newAccountRepoForTest(t *testing.T) AccountRepository {
	t.Helper()
	db := newRepositoryDBForTest(t)
	if err := db.AutoMigrate(&domain.Account{}, &domain.PasswordHistoryEntry{}); err != nil {
		t.Fatalf("migrate account: %v", err)
	}
	return NewAccountRepository(db)
}

func TestAccountRepositoryCreateRejectsDuplicateEmail(t *testing.T) {
	repo := newAccountRepoForTest(t)

	first := &domain.Account{Email: "dup@example.com", Name: "First", Origin: domain.AccountOriginLocal}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := &domain.Account{Email: "dup@example.com", Name: "Second", Origin: domain.AccountOriginLocal}
	if err := repo.Create(second); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAccountRepositoryFindByEmail(t *testing.T) {
	repo := newAccountRepoForTest(t)

	acc := &domain.Account{Email: "find@example.com", Name: "Finder", Origin: domain.AccountOriginLocal}
	if err := repo.Create(acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := repo.FindByEmail("find@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if loaded.ID != acc.ID || loaded.Name != "Finder" {
		t.Fatalf("unexpected account: %+v", loaded)
	}
	if _, err := repo.FindByEmail("missing@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAccountRepositoryPendingVerificationLifecycle(t *testing.T) {
	repo := newAccountRepoForTest(t)

	acc := &domain.Account{Email: "verify@example.com", Name: "V", Origin: domain.AccountOriginLocal}
	if err := repo.Create(acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	pending := domain.PendingVerification{
		Code:      "123456",
		Token:     "tok-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	if err := repo.SetPendingVerification(acc.ID, pending); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	loaded, err := repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := loaded.PendingVerification()
	if got == nil || got.Code != "123456" || got.Token != "tok-1" {
		t.Fatalf("unexpected pending window: %+v", got)
	}

	// Replacing the window supersedes earlier proofs.
	pending.Code = "654321"
	pending.Token = "tok-2"
	if err := repo.SetPendingVerification(acc.ID, pending); err != nil {
		t.Fatalf("replace pending: %v", err)
	}
	loaded, err = repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := loaded.PendingVerification(); got == nil || got.Token != "tok-2" {
		t.Fatalf("window not superseded: %+v", got)
	}

	// A proof validated against the replaced window must not consume.
	if err := repo.ConsumePendingVerification(acc.ID, "tok-1", now.Add(time.Minute)); !errors.Is(err, ErrStaleAccount) {
		t.Fatalf("expected ErrStaleAccount for superseded token, got %v", err)
	}
	loaded, err = repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Verified || loaded.PendingVerification() == nil {
		t.Fatalf("superseded consume must not touch the row, got %+v", loaded)
	}

	if err := repo.ConsumePendingVerification(acc.ID, "tok-2", now.Add(time.Minute)); err != nil {
		t.Fatalf("consume: %v", err)
	}
	loaded, err = repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !loaded.Verified || loaded.VerifiedAt == nil {
		t.Fatalf("expected verified account, got %+v", loaded)
	}
	if loaded.PendingVerification() != nil {
		t.Fatal("expected pending window to be cleared")
	}

	// Second consume has nothing to consume.
	if err := repo.ConsumePendingVerification(acc.ID, "tok-2", now.Add(2*time.Minute)); !errors.Is(err, ErrStaleAccount) {
		t.Fatalf("expected ErrStaleAccount on double consume, got %v", err)
	}
}

func TestAccountRepositoryApplyLockStateIsCompareAndSwap(t *testing.T) {
	repo := newAccountRepoForTest(t)

	acc := &domain.Account{Email: "lock@example.com", Name: "L", Origin: domain.AccountOriginLocal}
	if err := repo.Create(acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.ApplyLockState(acc.ID, 0, 1, nil); err != nil {
		t.Fatalf("first failure: %v", err)
	}
	// A second writer still holding the old counter loses the race.
	if err := repo.ApplyLockState(acc.ID, 0, 1, nil); !errors.Is(err, ErrStaleAccount) {
		t.Fatalf("expected ErrStaleAccount, got %v", err)
	}

	until := time.Now().UTC().Add(2 * time.Hour)
	if err := repo.ApplyLockState(acc.ID, 1, 5, &until); err != nil {
		t.Fatalf("lock: %v", err)
	}
	loaded, err := repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.FailedAttempts != 5 || loaded.LockedUntil == nil {
		t.Fatalf("unexpected lock state: %+v", loaded)
	}
	if !loaded.Locked(time.Now().UTC()) {
		t.Fatal("expected account to report locked")
	}

	if err := repo.RecordLoginSuccess(acc.ID, time.Now().UTC()); err != nil {
		t.Fatalf("record success: %v", err)
	}
	loaded, err = repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.FailedAttempts != 0 || loaded.LockedUntil != nil || loaded.LastLoginAt == nil {
		t.Fatalf("success did not reset lock state: %+v", loaded)
	}
}

func TestAccountRepositoryUpdatePasswordAppendsHistory(t *testing.T) {
	repo := newAccountRepoForTest(t)

	acc := &domain.Account{Email: "pw@example.com", Name: "P", Origin: domain.AccountOriginLocal, PasswordHash: "hash-0"}
	if err := repo.Create(acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, hash := range []string{"hash-1", "hash-2"} {
		if err := repo.UpdatePassword(acc.ID, hash, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("update password %d: %v", i, err)
		}
	}

	loaded, err := repo.FindByID(acc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.PasswordHash != "hash-2" {
		t.Fatalf("hash not updated: %q", loaded.PasswordHash)
	}

	history, err := repo.PasswordHistory(acc.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Hash != "hash-1" || history[1].Hash != "hash-2" {
		t.Fatalf("unexpected history order: %+v", history)
	}

	if err := repo.UpdatePassword(999, "hash-x", base); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
