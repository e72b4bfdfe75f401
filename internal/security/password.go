package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argonParams carries the cost settings encoded alongside every hash, so
// the work factor can be raised later without invalidating stored hashes.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	digest  []byte
}

var defaultArgonParams = argonParams{
	memory:  64 * 1024,
	time:    3,
	threads: 2,
}

const (
	argonSaltLen = 16
	argonKeyLen  = 32
)

// HashPassword derives a salted argon2id hash in the standard
// $argon2id$v=19$... encoding.
func HashPassword(password string) (string, error) {
	p := defaultArgonParams
	p.salt = make([]byte, argonSaltLen)
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.digest = argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, argonKeyLen)
	return p.encode(), nil
}

// VerifyPassword re-derives the key with the parameters stored in the hash
// and compares in constant time. Malformed input verifies as false rather
// than returning an error a caller could mishandle.
func VerifyPassword(encoded, password string) bool {
	p, err := parseArgonHash(encoded)
	if err != nil {
		return false
	}
	if uint64(len(p.digest)) > uint64(math.MaxUint32) {
		return false
	}
	derived := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.digest)))
	return subtle.ConstantTimeCompare(derived, p.digest) == 1
}

func (p argonParams) encode() string {
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.digest))
}

var errMalformedHash = errors.New("malformed argon2id hash")

func parseArgonHash(encoded string) (argonParams, error) {
	var p argonParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return p, errMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, errMalformedHash
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, errMalformedHash
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, errMalformedHash
	}
	return p, nil
}
