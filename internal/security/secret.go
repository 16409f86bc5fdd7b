package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// webhookSecretPrefix is the prefix used for generated webhook secrets.
const webhookSecretPrefix = "whsec_"

// GenerateWebhookSecret creates a new random shared secret suitable for
// webhook signature verification.
func GenerateWebhookSecret() (secret string, err error) {
	raw := make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return webhookSecretPrefix + hex.EncodeToString(raw), nil
}

// GenerateRandomString returns a hex-encoded random string of the given length.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(bytes)[:length], nil
}
