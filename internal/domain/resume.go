package domain

import "time"

// Resume is one CV document owned by an account. Body holds the structured
// document (sections, entries) as a JSON string; the API treats it as opaque.
type Resume struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"index:idx_resumes_account;not null" json:"account_id"`
	Title     string    `gorm:"size:120;not null" json:"title"`
	Summary   string    `gorm:"size:500" json:"summary"`
	Body      string    `gorm:"type:text" json:"body"`
	Theme     string    `gorm:"size:64;not null;default:classic" json:"theme"`
	PhotoKey  string    `gorm:"size:512" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
