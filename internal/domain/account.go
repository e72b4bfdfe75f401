package domain

import "time"

type AccountOrigin string

const (
	// AccountOriginLocal marks accounts created through email+password signup.
	AccountOriginLocal AccountOrigin = "local"
	// AccountOriginExternal marks accounts created by an external identity
	// provider; they carry no password hash.
	AccountOriginExternal AccountOrigin = "external"
)

// Account is the single durable record per user. Verification material and
// lock accounting live on the account itself so that every state transition
// is one conditional update against one row.
type Account struct {
	ID     uint          `gorm:"primaryKey" json:"id"`
	Email  string        `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name   string        `gorm:"size:255;not null" json:"name"`
	Origin AccountOrigin `gorm:"size:16;not null" json:"origin"`

	PasswordHash string `gorm:"size:1024" json:"-"`

	Verified   bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	// The four verification columns are only ever written together: set as a
	// unit on issuance, cleared as a unit on redeem. Use PendingVerification()
	// to read them.
	VerificationCode      *string    `gorm:"size:8" json:"-"`
	VerificationToken     *string    `gorm:"size:2048" json:"-"`
	VerificationIssuedAt  *time.Time `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`

	FailedAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PasswordHistory []PasswordHistoryEntry `gorm:"foreignKey:AccountID" json:"-"`
}

// PasswordHistoryEntry records every hash the account has ever had,
// oldest first. Append-only.
type PasswordHistoryEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	AccountID uint      `gorm:"index;not null" json:"-"`
	Hash      string    `gorm:"size:1024;not null" json:"-"`
	SetAt     time.Time `gorm:"not null" json:"-"`
}

// PendingVerification is the open verification window: one code and one
// signed token redeemable until ExpiresAt. Both proofs share the window.
type PendingVerification struct {
	Code      string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PendingVerification returns the open window, or nil when no verification
// is pending. Partially populated columns are treated as absent.
func (a *Account) PendingVerification() *PendingVerification {
	if a.VerificationCode == nil || a.VerificationToken == nil ||
		a.VerificationIssuedAt == nil || a.VerificationExpiresAt == nil {
		return nil
	}
	return &PendingVerification{
		Code:      *a.VerificationCode,
		Token:     *a.VerificationToken,
		IssuedAt:  *a.VerificationIssuedAt,
		ExpiresAt: *a.VerificationExpiresAt,
	}
}

// Locked reports whether authentication must be refused regardless of
// credential correctness.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}
