// Package identity orchestrates the wallet store, crypto providers and the
// counterpart resolver behind the seven identity operations.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aegis-id/go-agent/internal/crypto"
	"aegis-id/go-agent/internal/resolver"
	"aegis-id/go-agent/internal/wallet"
	"aegis-id/go-agent/pkg/models"

	"github.com/mr-tron/base58/base58"
	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidIdentityJSON = errors.New("invalid identity json")
	ErrDidAlreadyExists    = errors.New("did already exists")
	ErrDidNotFound         = errors.New("did not found")
	ErrUnknownDid          = errors.New("unknown did")
	ErrResolutionTimeout   = errors.New("did resolution timed out")
	ErrStorageUnavailable  = errors.New("identity storage unavailable")
)

const (
	didIDBytes            = 16
	envelopeVersion       = 1
	defaultResolveTimeout = 10 * time.Second
)

type Service struct {
	store          wallet.Store
	providers      *crypto.Registry
	resolver       resolver.Resolver
	resolveTimeout time.Duration
}

func NewService(store wallet.Store, providers *crypto.Registry, res resolver.Resolver, resolveTimeout time.Duration) *Service {
	if resolveTimeout <= 0 {
		resolveTimeout = defaultResolveTimeout
	}
	return &Service{
		store:          store,
		providers:      providers,
		resolver:       res,
		resolveTimeout: resolveTimeout,
	}
}

// CreateAndStoreMyDid generates (or re-derives from an explicit seed) a
// signing key pair, derives the matching encryption key pair and commits a
// new owned record. The did defaults to the base58 form of the first 16
// verkey bytes.
func (s *Service) CreateAndStoreMyDid(h wallet.Handle, didJSON string) (models.CreatedIdentity, error) {
	var req models.DIDRequest
	if err := json.Unmarshal([]byte(didJSON), &req); err != nil {
		return models.CreatedIdentity{}, fmt.Errorf("%w: %v", ErrInvalidIdentityJSON, err)
	}
	cryptoType := models.NormalizeCryptoType(req.CryptoType)
	provider, err := s.providers.Provider(cryptoType)
	if err != nil {
		return models.CreatedIdentity{}, err
	}

	seed, err := seedBytes(req.Seed)
	if err != nil {
		return models.CreatedIdentity{}, err
	}
	signing, err := provider.GenerateSigningKeyPair(seed)
	if err != nil {
		return models.CreatedIdentity{}, err
	}
	encryption, err := provider.DeriveEncryptionKeyPair(signing)
	if err != nil {
		return models.CreatedIdentity{}, err
	}

	did := strings.TrimSpace(req.Did)
	if did == "" {
		did = base58.Encode(signing.Public[:didIDBytes])
	}

	rec := wallet.MyIdentity{Did: did, Verkey: signing.Public, CryptoType: cryptoType}
	if err := s.store.CreateMyIdentity(h, rec, signing); err != nil {
		if errors.Is(err, wallet.ErrAlreadyExists) {
			return models.CreatedIdentity{}, fmt.Errorf("%w: %s", ErrDidAlreadyExists, did)
		}
		return models.CreatedIdentity{}, storageError(err)
	}

	return models.CreatedIdentity{
		Did:           did,
		Verkey:        base58.Encode(signing.Public),
		EncryptionKey: base58.Encode(encryption.Public),
	}, nil
}

// ReplaceKeys rotates the key material of an existing owned record. The did
// is unchanged; the old key pair is discarded with no overlap window. A
// crypto_type in the request switches the record's scheme along with the
// keys.
func (s *Service) ReplaceKeys(h wallet.Handle, identityJSON, did string) (models.ReplacedKeys, error) {
	var req models.DIDRequest
	if err := json.Unmarshal([]byte(identityJSON), &req); err != nil {
		return models.ReplacedKeys{}, fmt.Errorf("%w: %v", ErrInvalidIdentityJSON, err)
	}

	rec, ok, err := s.store.GetMyIdentity(h, did)
	if err != nil {
		return models.ReplacedKeys{}, storageError(err)
	}
	if !ok {
		return models.ReplacedKeys{}, fmt.Errorf("%w: %s", ErrDidNotFound, did)
	}

	cryptoType := rec.CryptoType
	if strings.TrimSpace(req.CryptoType) != "" {
		cryptoType = models.NormalizeCryptoType(req.CryptoType)
	}
	provider, err := s.providers.Provider(cryptoType)
	if err != nil {
		return models.ReplacedKeys{}, err
	}

	seed, err := seedBytes(req.Seed)
	if err != nil {
		return models.ReplacedKeys{}, err
	}
	signing, err := provider.GenerateSigningKeyPair(seed)
	if err != nil {
		return models.ReplacedKeys{}, err
	}
	encryption, err := provider.DeriveEncryptionKeyPair(signing)
	if err != nil {
		return models.ReplacedKeys{}, err
	}

	if err := s.store.ReplaceMyKeys(h, did, cryptoType, signing); err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return models.ReplacedKeys{}, fmt.Errorf("%w: %s", ErrDidNotFound, did)
		}
		return models.ReplacedKeys{}, storageError(err)
	}

	return models.ReplacedKeys{
		Verkey:        base58.Encode(signing.Public),
		EncryptionKey: base58.Encode(encryption.Public),
	}, nil
}

// StoreTheirDid caches a counterpart identity. Repeated calls for the same
// did update the record in place.
func (s *Service) StoreTheirDid(h wallet.Handle, identityJSON string) error {
	var req models.TheirIdentity
	if err := json.Unmarshal([]byte(identityJSON), &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentityJSON, err)
	}
	did := strings.TrimSpace(req.Did)
	if did == "" || strings.TrimSpace(req.Verkey) == "" {
		return fmt.Errorf("%w: did and verkey are required", ErrInvalidIdentityJSON)
	}
	verkey, err := base58.Decode(req.Verkey)
	if err != nil {
		return fmt.Errorf("%w: verkey is not base58: %v", ErrInvalidIdentityJSON, err)
	}
	endpoint, err := resolver.NormalizeEndpoint(req.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentityJSON, err)
	}

	rec := wallet.TheirIdentity{
		Did:        did,
		Verkey:     verkey,
		CryptoType: models.NormalizeCryptoType(req.CryptoType),
		Endpoint:   endpoint,
	}
	if err := s.store.PutTheirIdentity(h, rec); err != nil {
		return storageError(err)
	}
	return nil
}

// Sign signs msg with the record's signing key and returns the base58
// signature. It never consults the resolver.
func (s *Service) Sign(h wallet.Handle, did, msg string) (string, error) {
	rec, ok, err := s.store.GetMyIdentity(h, did)
	if err != nil {
		return "", storageError(err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDidNotFound, did)
	}
	provider, err := s.providers.Provider(rec.CryptoType)
	if err != nil {
		return "", err
	}

	var signature []byte
	err = s.store.WithSigningKey(h, did, func(signing crypto.KeyPair) error {
		signature, err = provider.Sign(signing.Private, []byte(msg))
		return err
	})
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrDidNotFound, did)
		}
		return "", err
	}
	return base58.Encode(signature), nil
}

// VerifySignature checks msg against a counterpart's verkey, resolving and
// caching the counterpart on first use. A well-formed but non-matching
// signature returns false with a nil error.
func (s *Service) VerifySignature(ctx context.Context, h wallet.Handle, did, msg, signature string) (bool, error) {
	their, err := s.ensureTheirIdentity(ctx, h, did)
	if err != nil {
		return false, err
	}
	provider, err := s.providers.Provider(their.CryptoType)
	if err != nil {
		return false, err
	}
	sig, err := base58.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", crypto.ErrInvalidSignatureFormat, err)
	}
	return provider.Verify(their.Verkey, []byte(msg), sig)
}

// Encrypt seals msg from the owned identity myDid to the counterpart did and
// returns the serialized envelope.
func (s *Service) Encrypt(ctx context.Context, h wallet.Handle, myDid, did, msg string) (string, error) {
	my, ok, err := s.store.GetMyIdentity(h, myDid)
	if err != nil {
		return "", storageError(err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDidNotFound, myDid)
	}
	their, err := s.ensureTheirIdentity(ctx, h, did)
	if err != nil {
		return "", err
	}
	provider, err := s.providers.Provider(my.CryptoType)
	if err != nil {
		return "", err
	}

	recipientKey, err := provider.ConvertVerkey(their.Verkey)
	if err != nil {
		return "", err
	}
	nonce, err := provider.GenerateNonce()
	if err != nil {
		return "", err
	}

	var ciphertext []byte
	err = s.store.WithSigningKey(h, myDid, func(signing crypto.KeyPair) error {
		encryption, err := provider.DeriveEncryptionKeyPair(signing)
		if err != nil {
			return err
		}
		ciphertext, err = provider.Encrypt(encryption.Private, recipientKey, []byte(msg), nonce)
		return err
	})
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrDidNotFound, myDid)
		}
		return "", err
	}

	envelope, err := json.Marshal(models.Envelope{
		Version:    envelopeVersion,
		Sender:     base58.Encode(my.Verkey),
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}

// Decrypt opens an envelope addressed to the owned identity myDid. The
// sender is identified by the verkey embedded in the envelope, or resolved
// when the envelope carries a did instead. Any integrity failure is
// ErrDecryptionFailed.
func (s *Service) Decrypt(ctx context.Context, h wallet.Handle, myDid, encryptedMsg string) (string, error) {
	var env models.Envelope
	if err := json.Unmarshal([]byte(encryptedMsg), &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope: %v", crypto.ErrDecryptionFailed, err)
	}
	if env.Version != envelopeVersion || env.Sender == "" || len(env.Nonce) == 0 || len(env.Ciphertext) == 0 {
		return "", fmt.Errorf("%w: malformed envelope", crypto.ErrDecryptionFailed)
	}

	my, ok, err := s.store.GetMyIdentity(h, myDid)
	if err != nil {
		return "", storageError(err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDidNotFound, myDid)
	}
	provider, err := s.providers.Provider(my.CryptoType)
	if err != nil {
		return "", err
	}

	senderVerkey, err := s.senderVerkey(ctx, h, env.Sender)
	if err != nil {
		return "", err
	}
	senderKey, err := provider.ConvertVerkey(senderVerkey)
	if err != nil {
		return "", fmt.Errorf("%w: sender key: %v", crypto.ErrDecryptionFailed, err)
	}

	var plaintext []byte
	err = s.store.WithSigningKey(h, myDid, func(signing crypto.KeyPair) error {
		encryption, err := provider.DeriveEncryptionKeyPair(signing)
		if err != nil {
			return err
		}
		plaintext, err = provider.Decrypt(encryption.Private, senderKey, env.Ciphertext, env.Nonce)
		return err
	})
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrDidNotFound, myDid)
		}
		return "", err
	}
	return string(plaintext), nil
}

// senderVerkey interprets the envelope sender field: a base58 string that
// decodes to a full verkey is used directly, anything else is treated as a
// did and resolved through the counterpart cache.
func (s *Service) senderVerkey(ctx context.Context, h wallet.Handle, sender string) ([]byte, error) {
	if decoded, err := base58.Decode(sender); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	their, err := s.ensureTheirIdentity(ctx, h, sender)
	if err != nil {
		return nil, err
	}
	return their.Verkey, nil
}

// ensureTheirIdentity returns the cached counterpart record, resolving and
// caching it when absent. Resolution is bounded by the service timeout and
// failures surface as ErrUnknownDid.
func (s *Service) ensureTheirIdentity(ctx context.Context, h wallet.Handle, did string) (wallet.TheirIdentity, error) {
	rec, ok, err := s.store.GetTheirIdentity(h, did)
	if err != nil {
		return wallet.TheirIdentity{}, storageError(err)
	}
	if ok {
		return rec, nil
	}
	if s.resolver == nil {
		return wallet.TheirIdentity{}, fmt.Errorf("%w: %s", ErrUnknownDid, did)
	}

	rctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()
	res, err := s.resolver.Resolve(rctx, did)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return wallet.TheirIdentity{}, fmt.Errorf("%w: %s: %w", ErrUnknownDid, did, ErrResolutionTimeout)
		}
		return wallet.TheirIdentity{}, fmt.Errorf("%w: %s: %v", ErrUnknownDid, did, err)
	}

	endpoint, err := resolver.NormalizeEndpoint(res.Endpoint)
	if err != nil {
		// A bad endpoint does not invalidate the verification material.
		endpoint = ""
	}
	rec = wallet.TheirIdentity{
		Did:        did,
		Verkey:     res.Verkey,
		CryptoType: models.CryptoTypeEd25519,
		Endpoint:   endpoint,
	}
	if err := s.store.PutTheirIdentity(h, rec); err != nil {
		return wallet.TheirIdentity{}, storageError(err)
	}
	return rec, nil
}

// seedBytes normalizes the request seed: empty means random, a value of the
// scheme seed size is used as-is, and a BIP-39 mnemonic is expanded
// deterministically.
func seedBytes(seed string) ([]byte, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, nil
	}
	if len(seed) == crypto.SeedSize {
		return []byte(seed), nil
	}
	if bip39.IsMnemonicValid(seed) {
		return bip39.NewSeed(seed, "")[:crypto.SeedSize], nil
	}
	return nil, fmt.Errorf("%w: got %d, want %d or a valid mnemonic", crypto.ErrInvalidSeedLength, len(seed), crypto.SeedSize)
}

func storageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
