package service

import (
	"reflect"
	"testing"
)

func TestEvaluatePasswordViolations(t *testing.T) {
	tests := []struct {
		name           string
		password       string
		wantViolations []string
	}{
		{name: "valid", password: "Valid#Pass123", wantViolations: nil},
		{name: "too_short", password: "Aa1#xyz", wantViolations: []string{ViolationTooShort}},
		{name: "missing_upper", password: "valid#pass1234", wantViolations: []string{ViolationNoUpper}},
		{name: "missing_lower", password: "VALID#PASS1234", wantViolations: []string{ViolationNoLower}},
		{name: "missing_digit", password: "Valid#Password", wantViolations: []string{ViolationNoDigit}},
		{name: "missing_special", password: "ValidPass1234", wantViolations: []string{ViolationNoSpecial}},
		{
			name:     "all_rules_reported_at_once",
			password: "aaaa",
			wantViolations: []string{
				ViolationTooShort, ViolationNoUpper, ViolationNoDigit, ViolationNoSpecial,
			},
		},
		{name: "empty", password: "", wantViolations: []string{
			ViolationTooShort, ViolationNoUpper, ViolationNoLower, ViolationNoDigit, ViolationNoSpecial,
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluatePassword(tc.password)
			if !reflect.DeepEqual(got.Violations, tc.wantViolations) {
				t.Fatalf("violations = %v, want %v", got.Violations, tc.wantViolations)
			}
			if got.Valid() != (len(tc.wantViolations) == 0) {
				t.Fatalf("Valid() = %v with violations %v", got.Valid(), got.Violations)
			}
		})
	}
}

func TestEvaluatePasswordMissingUpperIncludesLowerPresence(t *testing.T) {
	// Sanity for the one case where a missing-lower password still counts
	// other classes.
	got := EvaluatePassword("PASS1234#")
	if !reflect.DeepEqual(got.Violations, []string{ViolationNoLower}) {
		t.Fatalf("violations = %v", got.Violations)
	}
}

func TestEvaluatePasswordTiers(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		wantScore int
		wantTier  StrengthTier
	}{
		// 1 length point + lower only.
		{name: "short_single_class", password: "aaaaaaaa", wantScore: 2, wantTier: StrengthWeak},
		// No length points, lower+digit.
		{name: "tiny_two_class", password: "a1", wantScore: 2, wantTier: StrengthWeak},
		// 8+ length, lower, upper, digit, combo bonus.
		{name: "medium_mix", password: "Abcdef12", wantScore: 5, wantTier: StrengthMedium},
		// 12+ length, all four classes, both combo bonuses.
		{name: "strong_full_mix", password: "Abcdef12#xyz", wantScore: 8, wantTier: StrengthStrong},
		// 16+ length, all classes, all bonuses: full score.
		{name: "max_score", password: "Abcdef12#xyzKLM9", wantScore: 9, wantTier: StrengthStrong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluatePassword(tc.password)
			if got.Score != tc.wantScore {
				t.Fatalf("score = %d, want %d", got.Score, tc.wantScore)
			}
			if got.Tier != tc.wantTier {
				t.Fatalf("tier = %q, want %q", got.Tier, tc.wantTier)
			}
		})
	}
}

func TestEvaluatePasswordReportsTierEvenWhenInvalid(t *testing.T) {
	// Long all-lowercase password: invalid, but still earns length points.
	got := EvaluatePassword("aaaaaaaaaaaaaaaa")
	if got.Valid() {
		t.Fatal("expected invalid password")
	}
	if got.Score != 4 || got.Tier != StrengthMedium {
		t.Fatalf("score=%d tier=%q, want 4/medium", got.Score, got.Tier)
	}
}
