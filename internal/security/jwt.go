package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager signs and parses the session token pair. Access and refresh
// tokens use separate secrets so a leaked access secret cannot mint
// long-lived credentials.
type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
}

func (m *JWTManager) SignAccessToken(accountID uint, ttl time.Duration) (string, error) {
	return m.sign(accountID, tokenTypeAccess, m.accessSecret, ttl)
}

func (m *JWTManager) SignRefreshToken(accountID uint, ttl time.Duration) (string, error) {
	return m.sign(accountID, tokenTypeRefresh, m.refreshSecret, ttl)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, tokenTypeAccess, m.accessSecret)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, tokenTypeRefresh, m.refreshSecret)
}

func (m *JWTManager) sign(accountID uint, typ string, secret []byte, ttl time.Duration) (string, error) {
	// A random jti keeps tokens minted within the same second distinct, so
	// their hashes never collide in the session table.
	jti, err := NewRandomString(12)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := &Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *JWTManager) parse(raw, wantType string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashRefreshToken produces the peppered digest stored in the session table;
// the raw refresh token never touches the database.
func HashRefreshToken(token, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
