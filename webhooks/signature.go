package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/goliatone/go-labelwatch/core"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
	signaturePrefix = "sha256="
)

// HMACVerifier checks X-Hub-Signature-256 against the shared webhook secret.
// With an empty secret it runs in insecure mode: every delivery is accepted
// and a warning is logged.
type HMACVerifier struct {
	secret []byte
	logger core.Logger
}

func NewHMACVerifier(secret string, logger core.Logger) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		logger: core.ResolveLogger("labelwatch.webhooks.signature", nil, logger),
	}
}

func (v *HMACVerifier) Insecure() bool {
	return v == nil || len(v.secret) == 0
}

func (v *HMACVerifier) Verify(ctx context.Context, body []byte, header string) error {
	if v.Insecure() {
		if v != nil {
			core.Log(ctx, v.logger, core.LevelWarn, "webhook signature verification disabled: no secret configured", nil)
		}
		return nil
	}
	return validateSignature(v.secret, body, header)
}

// ValidateSignature computes HMAC-SHA256 of body with secret and compares it
// in constant time with header, which may carry a "sha256=" prefix.
func ValidateSignature(secret string, body []byte, header string) error {
	return validateSignature([]byte(secret), body, header)
}

// Sign returns the header value a sender would attach to body.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(computeMAC([]byte(secret), body))
}

func validateSignature(secret []byte, body []byte, header string) error {
	signature := strings.TrimSpace(header)
	if signature == "" {
		return core.AuthenticationFailure("missing signature header")
	}
	signature = strings.ToLower(strings.TrimPrefix(signature, signaturePrefix))
	expected := hex.EncodeToString(computeMAC(secret, body))
	if len(signature) != len(expected) {
		return core.AuthenticationFailure("signature length mismatch")
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return core.AuthenticationFailure("signature mismatch")
	}
	return nil
}

func computeMAC(secret []byte, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
