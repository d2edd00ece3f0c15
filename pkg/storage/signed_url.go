package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed file access tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a token binding scope and file id until the TTL elapses.
func (s *SignedURLSigner) Generate(scope, fileID string) (string, time.Time, error) {
	if scope == "" || fileID == "" {
		return "", time.Time{}, fmt.Errorf("scope and file id required")
	}
	if strings.Contains(scope, ".") {
		return "", time.Time{}, fmt.Errorf("scope must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedID := base64.RawURLEncoding.EncodeToString([]byte(fileID))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(scope, ts, encodedID)
	return strings.Join([]string{scope, ts, encodedID, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns the embedded scope and file id.
// When allowExpired is true, the timestamp check is skipped.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (scope, fileID string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	scope, ts, encodedID, signature := parts[0], parts[1], parts[2], parts[3]

	rawID, err := base64.RawURLEncoding.DecodeString(encodedID)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode file id: %w", err)
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	expected := s.sign(scope, ts, encodedID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return scope, string(rawID), expiresAt, nil
}

func (s *SignedURLSigner) sign(scope, ts, encodedID string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(scope + "|" + ts + "|" + encodedID))
	return hex.EncodeToString(mac.Sum(nil))
}
