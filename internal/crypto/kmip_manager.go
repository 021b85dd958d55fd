package crypto

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Moka-Reads/QuickFetch/internal/qferrors"
	"github.com/ovh/kmip-go/kmipclient"
	"github.com/ovh/kmip-go/payloads"
)

// KMIPKeyReference names one wrapping key a CosmianKMIPManager may use,
// by KMIP unique identifier and a caller-assigned version number.
type KMIPKeyReference struct {
	ID      string
	Version int
}

// CosmianKMIPOptions configures a CosmianKMIPManager.
type CosmianKMIPOptions struct {
	Endpoint string
	Keys     []KMIPKeyReference
	TLSConfig *tls.Config
	Timeout   time.Duration
	// Provider is recorded on every KeyEnvelope this manager produces.
	Provider string
	// DualReadWindow lets UnwrapKey fall back to the N most recent
	// previous key versions when an envelope's KeyID is missing (legacy
	// envelopes written before a key rotation).
	DualReadWindow int
}

// CosmianKMIPManager is a KeyManager backed by a Cosmian KMIP server,
// wrapping and unwrapping DEKs via the KMIP Encrypt/Decrypt operations
// rather than deriving them locally.
type CosmianKMIPManager struct {
	client   kmipclient.Client
	keys     []KMIPKeyReference
	provider string
	window   int

	mu      sync.RWMutex
	byID    map[string]int
}

// NewCosmianKMIPManager dials the configured KMIP endpoint and returns a
// ready-to-use manager.
func NewCosmianKMIPManager(opts CosmianKMIPOptions) (*CosmianKMIPManager, error) {
	if len(opts.Keys) == 0 {
		return nil, qferrors.Crypto("new_cosmian_kmip_manager", fmt.Errorf("at least one key reference is required"))
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	client, err := kmipclient.Dial(opts.Endpoint,
		kmipclient.WithTlsConfig(opts.TLSConfig),
		kmipclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, qferrors.Crypto("new_cosmian_kmip_manager", fmt.Errorf("dial %s: %w", opts.Endpoint, err))
	}

	byID := make(map[string]int, len(opts.Keys))
	for _, k := range opts.Keys {
		byID[k.ID] = k.Version
	}

	return &CosmianKMIPManager{
		client:   client,
		keys:     append([]KMIPKeyReference(nil), opts.Keys...),
		provider: opts.Provider,
		window:   opts.DualReadWindow,
		byID:     byID,
	}, nil
}

// Provider returns the diagnostic provider identifier configured at
// construction.
func (m *CosmianKMIPManager) Provider() string { return m.provider }

func (m *CosmianKMIPManager) activeKey() KMIPKeyReference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := m.keys[0]
	for _, k := range m.keys {
		if k.Version > active.Version {
			active = k
		}
	}
	return active
}

// WrapKey encrypts plaintext (the per-entry DEK) under the active
// wrapping key via a KMIP Encrypt operation.
func (m *CosmianKMIPManager) WrapKey(ctx context.Context, plaintext []byte, metadata map[string]string) (*KeyEnvelope, error) {
	active := m.activeKey()
	resp, err := m.client.Encrypt(ctx, &payloads.EncryptRequestPayload{
		UniqueIdentifier: active.ID,
		Data:             plaintext,
	})
	if err != nil {
		return nil, qferrors.Crypto("wrap_key", err)
	}
	return &KeyEnvelope{
		KeyID:      active.ID,
		KeyVersion: active.Version,
		Provider:   m.provider,
		Ciphertext: resp.Data,
	}, nil
}

// UnwrapKey decrypts envelope.Ciphertext via a KMIP Decrypt operation.
// When envelope.KeyID is empty (a legacy envelope recording only a
// version), it resolves the KeyID by version, honoring DualReadWindow.
func (m *CosmianKMIPManager) UnwrapKey(ctx context.Context, envelope *KeyEnvelope, metadata map[string]string) ([]byte, error) {
	keyID := envelope.KeyID
	if keyID == "" {
		ref, ok := m.keyByVersion(envelope.KeyVersion)
		if !ok {
			return nil, qferrors.Crypto("unwrap_key", fmt.Errorf("no wrapping key registered for version %d", envelope.KeyVersion))
		}
		keyID = ref.ID
	}

	resp, err := m.client.Decrypt(ctx, &payloads.DecryptRequestPayload{
		UniqueIdentifier: keyID,
		Data:             envelope.Ciphertext,
	})
	if err != nil {
		return nil, qferrors.Crypto("unwrap_key", err)
	}
	return resp.Data, nil
}

func (m *CosmianKMIPManager) keyByVersion(version int) (KMIPKeyReference, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := append([]KMIPKeyReference(nil), m.keys...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Version > candidates[j].Version })

	for i, k := range candidates {
		if i > m.window {
			break
		}
		if k.Version == version {
			return k, true
		}
	}
	return KMIPKeyReference{}, false
}

// ActiveKeyVersion returns the version of the currently active wrapping
// key.
func (m *CosmianKMIPManager) ActiveKeyVersion(ctx context.Context) (int, error) {
	return m.activeKey().Version, nil
}

// HealthCheck issues a lightweight KMIP Get against the active key to
// confirm the server is reachable and the key still exists.
func (m *CosmianKMIPManager) HealthCheck(ctx context.Context) error {
	active := m.activeKey()
	_, err := m.client.Get(ctx, &payloads.GetRequestPayload{UniqueIdentifier: active.ID})
	if err != nil {
		return qferrors.Crypto("health_check", err)
	}
	return nil
}

// Close releases the underlying KMIP connection.
func (m *CosmianKMIPManager) Close(ctx context.Context) error {
	if err := m.client.Close(); err != nil {
		return qferrors.Crypto("close", err)
	}
	return nil
}
