// Package auth issues and verifies HMAC-signed bearer tokens carrying the
// owner identity. The core never parses raw credentials; handlers verify the
// token once and pass the owner string down.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrTokenMalformed is returned when the token format cannot be parsed.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenInvalid is returned when the signature does not match.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned when the token timestamp exceeds its TTL.
	ErrTokenExpired = errors.New("token expired")

	// ErrBadCredentials is returned by CheckCredentials on mismatch.
	ErrBadCredentials = errors.New("bad credentials")
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

// clockSkew tolerates minor clock drift between issuer and verifier.
const clockSkew = 5 * time.Minute

// Signer issues and verifies signed identity tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. A non-positive ttl uses DefaultTTL.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue creates a token bound to owner.
// Format: "base64url(owner):timestamp:signature".
func (s *Signer) Issue(owner string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(owner))
	timestamp := s.now().Unix()
	return fmt.Sprintf("%s:%d:%s", encoded, timestamp, s.sign(encoded, timestamp))
}

// Verify validates a token and returns the owner identity it carries.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return "", ErrTokenMalformed
	}

	encoded := parts[0]
	timestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrTokenMalformed
	}

	expected := s.sign(encoded, timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return "", ErrTokenInvalid
	}

	issued := time.Unix(timestamp, 0)
	now := s.now()
	if issued.After(now.Add(clockSkew)) {
		return "", ErrTokenInvalid
	}
	if now.Sub(issued) > s.ttl {
		return "", ErrTokenExpired
	}

	owner, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrTokenMalformed
	}
	if len(owner) == 0 {
		return "", ErrTokenMalformed
	}
	return string(owner), nil
}

func (s *Signer) sign(encodedOwner string, timestamp int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s:%d", encodedOwner, timestamp)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// CheckCredentials compares a username/password pair against the configured
// admin pair in constant time.
func CheckCredentials(gotUser, gotPass, wantUser, wantPass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(gotPass), []byte(wantPass)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}
