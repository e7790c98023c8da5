// Package tokencrypt encrypts token material for cookie transport. The wire
// format is hex(nonce):hex(ciphertext); a fresh random nonce per call means
// encrypting the same token twice never yields the same cookie value.
package tokencrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sweemee/exam-server/internal/autherr"
)

// Codec performs symmetric AES-GCM encryption with a key list. Encryption
// always uses the first key; decryption tries each key in order so cookies
// issued under the previous key survive a rotation.
type Codec struct {
	keys []cipher.AEAD
}

// New builds a Codec from one or more 32-byte keys, current key first.
func New(keys ...[]byte) (*Codec, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one encryption key is required")
	}
	c := &Codec{}
	for i, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %d: must be 32 bytes, got %d", i, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		c.keys = append(c.keys, aead)
	}
	return c, nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("input must be a non-empty string")
	}
	aead := c.keys[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input returns autherr.ErrDecoding;
// well-formed input that no configured key can open returns
// autherr.ErrDecrypt. Callers rely on the distinction to tell garbage from
// a token issued under a key this deployment no longer holds.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", fmt.Errorf("%w: empty input", autherr.ErrDecoding)
	}

	parts := strings.Split(encrypted, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected nonce:ciphertext, got %d parts", autherr.ErrDecoding, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: nonce is not valid hex", autherr.ErrDecoding)
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid hex", autherr.ErrDecoding)
	}
	if len(nonce) != c.keys[0].NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce length %d", autherr.ErrDecoding, len(nonce))
	}

	for _, aead := range c.keys {
		plaintext, err := aead.Open(nil, nonce, sealed, nil)
		if err == nil {
			return string(plaintext), nil
		}
	}
	return "", fmt.Errorf("%w: no configured key could open the ciphertext", autherr.ErrDecrypt)
}
