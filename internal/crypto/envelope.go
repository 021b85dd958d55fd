package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"golang.org/x/crypto/chacha20poly1305"
)

// nonceSize is fixed at 12 bytes for both supported AEAD primitives, per
// the envelope format: nonce(12) || seal(plaintext).
const nonceSize = 12

// CipherKind names an AEAD construction. NewCipher accepts only the kinds
// declared below (and "" as AES-256-GCM); any other value is rejected,
// and there is no hook for registering further primitives.
type CipherKind string

const (
	CipherAESGCM           CipherKind = "aes-256-gcm"
	CipherChaCha20Poly1305 CipherKind = "chacha20-poly1305"
)

// Cipher seals and opens cached payloads using the envelope format
// nonce(12) || AEAD_seal(plaintext).
type Cipher struct {
	aead cipher.AEAD
	kind CipherKind
}

// NewCipher constructs a Cipher from a 32-byte key and the selected
// primitive. AES-256-GCM is the canonical default; ChaCha20-Poly1305 is
// the software-friendly alternative when hardware AES acceleration is
// unavailable.
func NewCipher(kind CipherKind, key []byte) (*Cipher, error) {
	var aead cipher.AEAD
	var err error
	switch kind {
	case CipherChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
	case CipherAESGCM, "":
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
		kind = CipherAESGCM
	default:
		return nil, qferrors.Crypto("new_cipher", fmt.Errorf("unregistered cipher kind %q", kind))
	}
	if err != nil {
		return nil, qferrors.Crypto("new_cipher", err)
	}
	return &Cipher{aead: aead, kind: kind}, nil
}

// Kind reports which AEAD primitive this Cipher was constructed with.
func (c *Cipher) Kind() CipherKind { return c.kind }

// Seal encrypts plaintext, returning nonce(12) || ciphertext||tag.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, qferrors.Crypto("seal", fmt.Errorf("generate nonce: %w", err))
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts an envelope produced by Seal. It rejects any input
// shorter than the nonce, rather than guessing a split point.
func (c *Cipher) Open(envelope []byte) ([]byte, error) {
	if len(envelope) < nonceSize {
		return nil, qferrors.Crypto("open", fmt.Errorf("envelope too short: %d bytes", len(envelope)))
	}
	nonce, ciphertext := envelope[:nonceSize], envelope[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, qferrors.Crypto("open", err)
	}
	return plaintext, nil
}
