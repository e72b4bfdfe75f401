package database

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/resumekit/resumekit/internal/domain"

	"gorm.io/gorm"
)

// SeedReport summarizes what a seed run created, for the CLI output.
type SeedReport struct {
	CreatedAccounts int  `json:"created_accounts"`
	CreatedResumes  int  `json:"created_resumes"`
	Noop            bool `json:"noop"`
}

var demoResumeBody = mustJSON(map[string]any{
	"sections": []map[string]any{
		{"kind": "experience", "entries": []map[string]string{
			{"role": "Backend Engineer", "company": "Acme", "from": "2021-01", "to": "2024-06"},
		}},
		{"kind": "education", "entries": []map[string]string{
			{"degree": "BSc Computer Science", "school": "State University"},
		}},
	},
})

// Seed creates a demo account with one resume so a fresh local environment
// has something to look at. The demo account is pre-verified; it never goes
// through the verification flow.
func Seed(db *gorm.DB, demoEmail string) (*SeedReport, error) {
	report := &SeedReport{}
	demoEmail = strings.TrimSpace(strings.ToLower(demoEmail))
	if demoEmail == "" {
		report.Noop = true
		return report, nil
	}

	now := time.Now().UTC()
	account := domain.Account{
		Email:      demoEmail,
		Name:       "Demo User",
		Origin:     domain.AccountOriginExternal,
		Verified:   true,
		VerifiedAt: &now,
	}
	res := db.Where("email = ?", demoEmail).FirstOrCreate(&account)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		report.CreatedAccounts++
	}

	resume := domain.Resume{
		AccountID: account.ID,
		Title:     "My first resume",
		Summary:   "Seeded example document",
		Body:      demoResumeBody,
		Theme:     "classic",
	}
	res = db.Where("account_id = ? AND title = ?", account.ID, resume.Title).FirstOrCreate(&resume)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		report.CreatedResumes++
	}

	report.Noop = report.CreatedAccounts == 0 && report.CreatedResumes == 0
	return report, nil
}

// MarkEmailVerified flips an account to verified and clears any open
// verification window. Dev tooling only; the API flow goes through the
// verification service.
func MarkEmailVerified(db *gorm.DB, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	res := db.Model(&domain.Account{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"verified":                true,
			"verified_at":             now,
			"verification_code":       nil,
			"verification_token":      nil,
			"verification_issued_at":  nil,
			"verification_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
