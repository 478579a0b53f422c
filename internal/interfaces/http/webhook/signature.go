package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/erp/catalogsync/internal/domain/integration"
)

// Webhook headers
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderTopic     = "X-Webhook-Topic"
)

// Sign returns the base64 HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	return base64.StdEncoding.EncodeToString(mac(secret, body))
}

// VerifySignature checks an HMAC-SHA256 signature of body. Commerce
// platforms send it base64 encoded; a hex digest, optionally prefixed with
// "sha256=", is accepted too.
func VerifySignature(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return integration.ErrInvalidSignature
	}
	expected := mac(secret, body)

	if hexSig, ok := strings.CutPrefix(signature, "sha256="); ok {
		return compare(expected, hexSig, hex.DecodeString)
	}
	if len(signature) == hex.EncodedLen(sha256.Size) {
		if err := compare(expected, strings.ToLower(signature), hex.DecodeString); err == nil {
			return nil
		}
	}
	return compare(expected, signature, base64.StdEncoding.DecodeString)
}

func compare(expected []byte, signature string, decode func(string) ([]byte, error)) error {
	got, err := decode(signature)
	if err != nil || !hmac.Equal(expected, got) {
		return integration.ErrInvalidSignature
	}
	return nil
}

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write(body)
	return m.Sum(nil)
}
