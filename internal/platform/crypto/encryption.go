// Package crypto seals sensitive employee fields (IBAN, salary) at rest with
// AES-256-GCM. An unconfigured Cipher passes values through so development
// databases keep working without a key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Cipher struct {
	aead cipher.AEAD
}

func New(key string) (*Cipher, error) {
	if key == "" {
		return &Cipher{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding")
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Configured() bool {
	return c != nil && c.aead != nil
}

func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	if len(plain) == 0 || !c.Configured() {
		return nil, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 || !c.Configured() {
		return nil, nil
	}
	size := c.aead.NonceSize()
	if len(sealed) < size {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, sealed[:size], sealed[size:], nil)
}

func (c *Cipher) SealString(value string) ([]byte, error) {
	return c.Seal([]byte(value))
}

func (c *Cipher) SealFloat(value *float64) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return c.Seal([]byte(strconv.FormatFloat(*value, 'f', 2, 64)))
}

// OpenString returns the decrypted value, or plain when nothing was sealed or
// the ciphertext cannot be opened.
func (c *Cipher) OpenString(sealed []byte, plain string) string {
	opened, err := c.Open(sealed)
	if err != nil || opened == nil {
		return plain
	}
	return string(opened)
}

func (c *Cipher) OpenFloat(sealed []byte, plain *float64) *float64 {
	opened, err := c.Open(sealed)
	if err != nil || opened == nil {
		return plain
	}
	parsed, err := strconv.ParseFloat(string(opened), 64)
	if err != nil {
		return plain
	}
	return &parsed
}

func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
