package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/lgdx/activity-service/internal/apperrors"
)

// SignatureHeader is the header GitHub sends with every delivery:
// "sha256=<hex digest>" over the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature recomputes the HMAC-SHA256 of body with secret and
// compares it to the delivery header in constant time. A missing header,
// missing secret, or mismatched digest all fail with ErrSignature so the
// caller cannot distinguish them.
func VerifySignature(body []byte, header, secret string) error {
	if header == "" || secret == "" {
		return fmt.Errorf("%w: missing signature or secret", apperrors.ErrSignature)
	}

	received, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return fmt.Errorf("%w: unexpected signature scheme", apperrors.ErrSignature)
	}

	receivedMAC, err := hex.DecodeString(received)
	if err != nil {
		return fmt.Errorf("%w: malformed signature digest", apperrors.ErrSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(mac.Sum(nil), receivedMAC) {
		return fmt.Errorf("%w: digest mismatch", apperrors.ErrSignature)
	}

	return nil
}
