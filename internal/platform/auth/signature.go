package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
)

const defaultSignatureHeader = "X-Gateway-Signature"

// maxWebhookBody bounds the payload read for signature verification.
const maxWebhookBody = 1 << 20

// SignatureValidator verifies HMAC-SHA256 signatures on webhook payloads.
// The signature is computed over the raw request body exactly as received;
// parsing happens only after verification succeeds.
type SignatureValidator struct {
	secret []byte
	header string
}

// SignatureOption customises the validator.
type SignatureOption func(*SignatureValidator)

// WithSignatureHeader overrides the header carrying the hex signature.
func WithSignatureHeader(header string) SignatureOption {
	return func(v *SignatureValidator) {
		header = strings.TrimSpace(header)
		if header != "" {
			v.header = header
		}
	}
}

// NewSignatureValidator builds a validator using the shared gateway secret.
func NewSignatureValidator(secret string, opts ...SignatureOption) (*SignatureValidator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	v := &SignatureValidator{
		secret: []byte(secret),
		header: defaultSignatureHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify checks the provided hex signature against the payload.
func (v *SignatureValidator) Verify(payload []byte, signature string) bool {
	if v == nil {
		return false
	}
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	decoded, err := hex.DecodeString(signature)
	if err != nil || len(decoded) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// Sign computes the hex signature for a payload. Used by tests and outbound
// gateway simulation tooling.
func (v *SignatureValidator) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// RequireSignature enforces a valid signature before the handler runs. The
// body is restored for downstream parsing.
func (v *SignatureValidator) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "signature secret not configured")
				return
			}

			signature := strings.TrimSpace(r.Header.Get(v.header))
			if signature == "" {
				respondAuthError(w, http.StatusUnauthorized, "signature_missing", "signature header missing")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				respondAuthError(w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
				return
			}

			if !v.Verify(body, signature) {
				respondAuthError(w, http.StatusUnauthorized, "signature_invalid", "signature verification failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	if len(body) > maxWebhookBody {
		return nil, errors.New("auth: webhook body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
