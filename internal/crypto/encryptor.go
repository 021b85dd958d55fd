package crypto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
)

// Encryptor is the coordinator-facing encryption-at-rest dependency:
// seal a payload keyed by an entry's identity bytes, and open it back
// up. Coordinator.SetCipher installs one of these.
type Encryptor interface {
	Seal(entryKey, plaintext []byte) ([]byte, error)
	Open(entryKey, record []byte) ([]byte, error)
}

// LocalEncryptor is the default Encryptor: it derives a fixed-length
// subkey from a master key plus the entry's identity bytes via HKDF,
// then seals with a fresh per-message AEAD cipher. The stored record is
// exactly the envelope `nonce(12) || AEAD_seal(...)`.
type LocalEncryptor struct {
	manager *LocalKeyManager
	kind    CipherKind
}

// NewLocalEncryptor builds a LocalEncryptor using kind for every entry.
func NewLocalEncryptor(manager *LocalKeyManager, kind CipherKind) *LocalEncryptor {
	return &LocalEncryptor{manager: manager, kind: kind}
}

func (e *LocalEncryptor) Seal(entryKey, plaintext []byte) ([]byte, error) {
	c, err := e.manager.Cipher(e.kind, entryKey)
	if err != nil {
		return nil, err
	}
	return c.Seal(plaintext)
}

func (e *LocalEncryptor) Open(entryKey, record []byte) ([]byte, error) {
	c, err := e.manager.Cipher(e.kind, entryKey)
	if err != nil {
		return nil, err
	}
	return c.Open(record)
}

// kmipHeader is the JSON-encoded envelope metadata KMIPEncryptor prefixes
// to every record, so UnwrapKey has what it needs without a side channel.
type kmipHeader struct {
	KeyID      string `json:"key_id"`
	KeyVersion int    `json:"key_version"`
	Provider   string `json:"provider"`
	Ciphertext []byte `json:"ciphertext"`
}

// RotationObserver receives notice of decrypts that went through a
// rotated (non-active) wrapping key version — records written before
// the KMS rotated and not yet re-sealed. *metrics.Metrics satisfies it.
type RotationObserver interface {
	RecordRotatedRead(ctx context.Context, keyVersion, activeVersion int)
}

// KMIPEncryptor is the KeyManager-backed Encryptor: it generates a random
// per-entry DEK, wraps it through the KeyManager (rather than deriving it
// locally), and uses the unwrapped DEK as the AEAD key for the payload.
// The wrapped DEK travels in a self-contained header ahead of the
// sealed payload, since the cache record has no side-channel metadata
// store to carry it.
type KMIPEncryptor struct {
	manager  KeyManager
	kind     CipherKind
	keySize  int
	rotation RotationObserver
}

// NewKMIPEncryptor builds a KMIPEncryptor generating keySize-byte DEKs
// (32 for AES-256-GCM or ChaCha20-Poly1305) sealed with kind.
func NewKMIPEncryptor(manager KeyManager, kind CipherKind, keySize int) *KMIPEncryptor {
	return &KMIPEncryptor{manager: manager, kind: kind, keySize: keySize}
}

// SetRotationObserver installs the sink rotated-key decrypts are
// reported to. Nil (the default) disables reporting.
func (e *KMIPEncryptor) SetRotationObserver(obs RotationObserver) {
	e.rotation = obs
}

func (e *KMIPEncryptor) Seal(entryKey, plaintext []byte) ([]byte, error) {
	dek := make([]byte, e.keySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, qferrors.Crypto("kmip_seal", err)
	}

	c, err := NewCipher(e.kind, dek)
	if err != nil {
		return nil, err
	}
	sealed, err := c.Seal(plaintext)
	if err != nil {
		return nil, err
	}

	envelope, err := e.manager.WrapKey(context.Background(), dek, map[string]string{"entry_key": string(entryKey)})
	if err != nil {
		return nil, err
	}

	header := kmipHeader{
		KeyID:      envelope.KeyID,
		KeyVersion: envelope.KeyVersion,
		Provider:   envelope.Provider,
		Ciphertext: envelope.Ciphertext,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, qferrors.Crypto("kmip_seal", fmt.Errorf("marshal envelope header: %w", err))
	}

	out := make([]byte, 4+len(headerBytes)+len(sealed))
	binary.BigEndian.PutUint32(out[:4], uint32(len(headerBytes)))
	copy(out[4:], headerBytes)
	copy(out[4+len(headerBytes):], sealed)
	return out, nil
}

func (e *KMIPEncryptor) Open(entryKey, record []byte) ([]byte, error) {
	if len(record) < 4 {
		return nil, qferrors.Crypto("kmip_open", fmt.Errorf("record too short for header length"))
	}
	headerLen := binary.BigEndian.Uint32(record[:4])
	if int(4+headerLen) > len(record) {
		return nil, qferrors.Crypto("kmip_open", fmt.Errorf("record too short for header"))
	}
	var header kmipHeader
	if err := json.Unmarshal(record[4:4+headerLen], &header); err != nil {
		return nil, qferrors.Crypto("kmip_open", fmt.Errorf("unmarshal envelope header: %w", err))
	}

	ctx := context.Background()
	dek, err := e.manager.UnwrapKey(ctx, &KeyEnvelope{
		KeyID:      header.KeyID,
		KeyVersion: header.KeyVersion,
		Provider:   header.Provider,
		Ciphertext: header.Ciphertext,
	}, map[string]string{"entry_key": string(entryKey)})
	if err != nil {
		return nil, err
	}

	if e.rotation != nil {
		if active, verr := e.manager.ActiveKeyVersion(ctx); verr == nil && header.KeyVersion != active {
			e.rotation.RecordRotatedRead(ctx, header.KeyVersion, active)
		}
	}

	c, err := NewCipher(e.kind, dek)
	if err != nil {
		return nil, err
	}
	return c.Open(record[4+headerLen:])
}
