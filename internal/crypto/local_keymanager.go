package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"golang.org/x/crypto/hkdf"
)

// subkeySize is the DEK length every supported AEAD primitive in this
// package expects (AES-256 and ChaCha20-Poly1305 both take 32-byte keys).
const subkeySize = 32

// LocalKeyManager derives a per-entry data encryption key from a single
// master key via HKDF-SHA256, using the entry's key bytes as the HKDF
// info parameter. The logical entry key is never treated as key
// material directly: a non-uniform-length or attacker-influenced key
// byte string only ever selects which subkey is derived, never what
// bytes the AEAD actually seals with.
type LocalKeyManager struct {
	masterKey []byte
}

// NewLocalKeyManager constructs a LocalKeyManager from a 32-byte master
// key.
func NewLocalKeyManager(masterKey []byte) (*LocalKeyManager, error) {
	if len(masterKey) != subkeySize {
		return nil, qferrors.Crypto("new_local_key_manager", fmt.Errorf("master key must be %d bytes, got %d", subkeySize, len(masterKey)))
	}
	return &LocalKeyManager{masterKey: append([]byte(nil), masterKey...)}, nil
}

// DeriveSubkey returns the 32-byte DEK for the given entry key bytes.
func (m *LocalKeyManager) DeriveSubkey(entryKey []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, m.masterKey, nil, entryKey)
	subkey := make([]byte, subkeySize)
	if _, err := io.ReadFull(reader, subkey); err != nil {
		return nil, qferrors.Crypto("derive_subkey", err)
	}
	return subkey, nil
}

// Cipher builds a Cipher sealing/opening with the subkey derived for
// entryKey under the chosen primitive.
func (m *LocalKeyManager) Cipher(kind CipherKind, entryKey []byte) (*Cipher, error) {
	subkey, err := m.DeriveSubkey(entryKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(kind, subkey)
}
