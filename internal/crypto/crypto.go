package crypto

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidSeedLength      = errors.New("invalid seed length")
	ErrInvalidKey             = errors.New("invalid key material")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrDecryptionFailed       = errors.New("decryption failed")
	ErrUnknownCryptoType      = errors.New("unknown crypto type")
)

// KeyPair holds one asymmetric key pair. Private halves stay inside the
// wallet/provider boundary and are never serialized onto the wire.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// Provider implements one scheme family: signature key generation and
// signing plus the matching key-agreement encryption. Implementations are
// pure and safe for concurrent use.
type Provider interface {
	// GenerateSigningKeyPair is deterministic when seed is non-empty and
	// fails with ErrInvalidSeedLength when seed has the wrong size.
	GenerateSigningKeyPair(seed []byte) (KeyPair, error)

	// DeriveEncryptionKeyPair converts a signing key pair into the matching
	// encryption key pair. Deterministic.
	DeriveEncryptionKeyPair(signing KeyPair) (KeyPair, error)

	// ConvertVerkey converts a public verification key into the matching
	// public encryption key.
	ConvertVerkey(verkey []byte) ([]byte, error)

	Sign(privateKey, message []byte) ([]byte, error)

	// Verify returns false for a well-formed but non-matching signature and
	// ErrInvalidSignatureFormat when the signature cannot be parsed.
	Verify(publicKey, message, signature []byte) (bool, error)

	GenerateNonce() ([]byte, error)
	NonceSize() int

	// Encrypt seals message under the shared secret of privateKey and
	// publicKey, bound to nonce. Decrypt never returns partial plaintext;
	// any integrity failure is ErrDecryptionFailed.
	Encrypt(privateKey, publicKey, message, nonce []byte) ([]byte, error)
	Decrypt(privateKey, publicKey, ciphertext, nonce []byte) ([]byte, error)
}

// Registry selects a Provider by the crypto_type tag stored on identity
// records.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// DefaultRegistry returns a registry with the ed25519 scheme installed.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ed25519", NewEd25519Provider())
	return r
}

func (r *Registry) Register(cryptoType string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[cryptoType] = p
}

func (r *Registry) Provider(cryptoType string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[cryptoType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCryptoType, cryptoType)
	}
	return p, nil
}
