package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification purposes. A token minted for one purpose never redeems
// another.
const (
	PurposeEmailVerification = "email-verification"
	PurposePasswordReset     = "password-reset"
)

var ErrInvalidVerificationToken = errors.New("invalid verification token")

type VerificationClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationSigner mints the signed half of a verification window: a
// self-contained HS256 token binding account, email and purpose, expiring at
// the same instant as the stored numeric code.
type VerificationSigner struct {
	issuer string
	secret []byte
}

func NewVerificationSigner(issuer, secret string) *VerificationSigner {
	return &VerificationSigner{issuer: issuer, secret: []byte(secret)}
}

func (s *VerificationSigner) Sign(accountID uint, email, purpose string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &VerificationClaims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies signature, expiry and purpose, failing closed on any
// mismatch. Identity binding against the stored account is the caller's job.
func (s *VerificationSigner) Parse(raw, wantPurpose string) (*VerificationClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &VerificationClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*VerificationClaims)
	if !ok || !token.Valid || claims.Purpose != wantPurpose {
		return nil, ErrInvalidVerificationToken
	}
	return claims, nil
}

// AccountID decodes the subject claim.
func (c *VerificationClaims) AccountID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidVerificationToken
	}
	return uint(id), nil
}
