package domain

import "time"

// Session tracks an issued refresh token by its peppered hash. Rotation
// revokes the old row and creates a new one.
type Session struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	AccountID        uint       `gorm:"index;not null" json:"account_id"`
	RefreshTokenHash string     `gorm:"uniqueIndex;size:128;not null" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IP               string     `gorm:"size:64" json:"ip"`
	ExpiresAt        time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
