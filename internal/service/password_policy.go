package service

import "unicode"

type StrengthTier string

const (
	StrengthWeak   StrengthTier = "weak"
	StrengthMedium StrengthTier = "medium"
	StrengthStrong StrengthTier = "strong"
)

const (
	ViolationTooShort  = "too_short"
	ViolationNoUpper   = "missing_uppercase"
	ViolationNoLower   = "missing_lowercase"
	ViolationNoDigit   = "missing_digit"
	ViolationNoSpecial = "missing_special"
)

// PolicyResult reports every violated rule independently, plus the strength
// score the candidate earned regardless of validity. Valid means zero
// violations; the tier is informational either way.
type PolicyResult struct {
	Violations []string
	Score      int
	Tier       StrengthTier
}

func (r PolicyResult) Valid() bool { return len(r.Violations) == 0 }

// EvaluatePassword checks the composition rules (length 8, upper, lower,
// digit, special) and scores strength on a 9-point scale: three length
// milestones (8, 12, 16), one point per character class, one for the
// lower+upper+digit combination and one for all four classes together.
func EvaluatePassword(password string) PolicyResult {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	length := len([]rune(password))

	var result PolicyResult
	if length < 8 {
		result.Violations = append(result.Violations, ViolationTooShort)
	}
	if !hasUpper {
		result.Violations = append(result.Violations, ViolationNoUpper)
	}
	if !hasLower {
		result.Violations = append(result.Violations, ViolationNoLower)
	}
	if !hasDigit {
		result.Violations = append(result.Violations, ViolationNoDigit)
	}
	if !hasSpecial {
		result.Violations = append(result.Violations, ViolationNoSpecial)
	}

	score := 0
	for _, milestone := range []int{8, 12, 16} {
		if length >= milestone {
			score++
		}
	}
	for _, present := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if present {
			score++
		}
	}
	if hasLower && hasUpper && hasDigit {
		score++
	}
	if hasLower && hasUpper && hasDigit && hasSpecial {
		score++
	}
	result.Score = score

	switch {
	case score <= 3:
		result.Tier = StrengthWeak
	case score <= 6:
		result.Tier = StrengthMedium
	default:
		result.Tier = StrengthStrong
	}
	return result
}
