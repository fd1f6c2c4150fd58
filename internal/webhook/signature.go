package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// verifySignature verifies a base64 HMAC-SHA256 signature against the exact
// raw request bytes. Both integration sources sign this way: HMAC over the
// body with the shared secret, digest base64-encoded into the signature
// header.
//
// Comparison is constant-time (crypto/subtle). When candidate and expected
// differ in length the check fails closed before the comparison runs.
// All errors are generic to prevent information leakage.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook verification failed")
	}

	// Absent header fails immediately; senders must sign every delivery.
	if signature == "" {
		return fmt.Errorf("webhook verification failed")
	}

	expected := computeSignature(body, secret)

	if len(signature) != len(expected) {
		return fmt.Errorf("webhook verification failed")
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return fmt.Errorf("webhook verification failed")
	}

	return nil
}

// computeSignature computes the base64 HMAC-SHA256 signature for a body.
// Also used by tests to build valid requests.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
