// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
	// Now 可替换的时间源，为空时使用 time.Now
	Now func() time.Time
}

func (c *TokenConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Token represents a session token
type Token struct {
	Subject   string           `json:"subject"`
	Mode      models.EntryMode `json:"mode"`
	ExpiresAt int64            `json:"expires_at"`
	IssuedAt  int64            `json:"issued_at"`
}

// GenerateToken creates a new session token for the given mode
func GenerateToken(subject string, mode models.EntryMode, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}
	if strings.Contains(subject, "|") {
		return "", fmt.Errorf("invalid subject")
	}

	now := config.now()
	payload := fmt.Sprintf("%s|%s|%d|%d", subject, mode, now.Add(config.Expiration).Unix(), now.Unix())

	encodedPayload := base64.URLEncoding.EncodeToString([]byte(payload))
	encodedSignature := base64.URLEncoding.EncodeToString(sign([]byte(payload), config.Secret))

	return encodedPayload + "." + encodedSignature, nil
}

func sign(payload, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	encodedPayload, encodedSignature, ok := strings.Cut(tokenString, ".")
	if !ok {
		return nil, fmt.Errorf("invalid token format")
	}

	payloadBytes, err := base64.URLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}
	signatureBytes, err := base64.URLEncoding.DecodeString(encodedSignature)
	if err != nil {
		return nil, fmt.Errorf("invalid token signature: %w", err)
	}

	if !hmac.Equal(signatureBytes, sign(payloadBytes, config.Secret)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	parts := strings.Split(string(payloadBytes), "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid payload format")
	}

	expiresAt, err1 := strconv.ParseInt(parts[2], 10, 64)
	issuedAt, err2 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("invalid payload timestamps")
	}

	if config.now().Unix() > expiresAt {
		return nil, fmt.Errorf("token has expired")
	}

	return &Token{
		Subject:   parts[0],
		Mode:      models.EntryMode(parts[1]),
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
	}, nil
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewTokenConfig 由配置的密钥构造，未配置时生成随机密钥
func NewTokenConfig(secret string, expiration time.Duration) (*TokenConfig, error) {
	var key []byte
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	} else {
		var err error
		if key, err = GenerateSecureKey(32); err != nil {
			return nil, err
		}
	}
	return &TokenConfig{Secret: key, Expiration: expiration}, nil
}
