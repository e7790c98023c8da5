// Package autherr defines the error taxonomy shared by the token and
// session packages. Handlers match these with errors.Is and map them to a
// generic unauthorized response; the detailed reason stays in the logs.
package autherr

import "errors"

var (
	// ErrDecoding means the presented material is not a well-formed
	// encrypted token: wrong format, bad hex, wrong IV length.
	ErrDecoding = errors.New("malformed encrypted token")
	// ErrDecrypt means the ciphertext was well-formed but none of the
	// configured keys could decrypt it.
	ErrDecrypt = errors.New("token decryption failed")
	// ErrSignature means the token signature is invalid or forged.
	ErrSignature = errors.New("invalid token signature")
	// ErrExpired means the token is well-formed and correctly signed but
	// past its expiry. Retryable via the refresh flow.
	ErrExpired = errors.New("token expired")
	// ErrRevoked means the token was explicitly invalidated before expiry.
	ErrRevoked = errors.New("token revoked")
	// ErrReplay means a refresh credential was presented again after it
	// was already rotated.
	ErrReplay = errors.New("refresh credential reuse detected")
	// ErrNotFound means the referenced user or credential no longer exists.
	ErrNotFound = errors.New("subject or credential not found")
	// ErrRoleMismatch means the role claim no longer matches the user record.
	ErrRoleMismatch = errors.New("token role mismatch")
	// ErrForbidden means the principal is authenticated but not authorized.
	ErrForbidden = errors.New("insufficient role")
	// ErrStoreUnavailable means a durable dependency timed out or is down.
	ErrStoreUnavailable = errors.New("durable store unavailable")
)

// Codes returned to clients. Stable: frontends branch on them to decide
// between a silent refresh and an interactive re-login.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeTokenRevoked = "TOKEN_REVOKED"
	CodeForbidden    = "FORBIDDEN"
	CodeNoToken      = "NO_TOKEN"
)

// Code collapses an error into its client-visible machine code. Everything
// that is not expressly expiry or authorization ends up as INVALID_TOKEN so
// internal distinctions do not leak.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrRevoked), errors.Is(err, ErrReplay):
		return CodeTokenRevoked
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInvalidToken
	}
}
