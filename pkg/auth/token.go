package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies Axle tokens
	TokenPrefix = "axle_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
	// DisplayPrefixLength is how many leading characters of the full token
	// are retained for listings ("axle_" plus the first 7 encoded chars).
	DisplayPrefixLength = 12
)

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: axle_<base64url(32 random bytes)>
// Example: axle_abc123def456...
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Encode to base64url (URL-safe, no padding)
	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)

	fullToken := TokenPrefix + encodedToken

	// SHA256 hash is what gets stored; the raw token is shown once
	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	prefix := fullToken
	if len(fullToken) >= DisplayPrefixLength {
		prefix = fullToken[:DisplayPrefixLength]
	}

	return fullToken, hashStr, prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format. This runs
// before any database lookup so garbage credentials never touch storage.
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	// Decode to verify it's valid base64url
	_, err := base64.RawURLEncoding.DecodeString(encodedPart)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the display prefix from a token for listings
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	if len(token) >= DisplayPrefixLength {
		return token[:DisplayPrefixLength]
	}

	return token
}
