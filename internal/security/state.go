package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignState appends an HMAC to the one-time oauth state so the callback can
// reject states it never issued.
func SignState(state, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(state))
	return state + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignedState splits and checks the signature, returning the original
// state on success.
func VerifySignedState(signed, key string) (string, bool) {
	idx := strings.LastIndex(signed, ".")
	if idx <= 0 {
		return "", false
	}
	state, sig := signed[:idx], signed[idx+1:]
	want := hmac.New(sha256.New, []byte(key))
	want.Write([]byte(state))
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, want.Sum(nil)) {
		return "", false
	}
	return state, true
}
