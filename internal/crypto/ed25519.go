package crypto

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// SeedSize is the required length of an explicit signing seed.
	SeedSize = ed25519.SeedSize

	hkdfInfoBox = "aegis/box/v1"
)

// Ed25519Provider implements edwards-curve signatures with X25519 key
// agreement and XChaCha20-Poly1305 authenticated encryption. Verification
// keys convert to encryption keys through the standard birational map, so a
// peer's stored verkey is enough to encrypt to them.
type Ed25519Provider struct{}

func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{}
}

func (p *Ed25519Provider) GenerateSigningKeyPair(seed []byte) (KeyPair, error) {
	if len(seed) == 0 {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{Public: pub, Private: priv}, nil
	}
	if len(seed) != SeedSize {
		return KeyPair{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidSeedLength, len(seed), SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return KeyPair{
		Public:  append([]byte(nil), pub...),
		Private: append(ed25519.PrivateKey(nil), priv...),
	}, nil
}

func (p *Ed25519Provider) DeriveEncryptionKeyPair(signing KeyPair) (KeyPair, error) {
	if len(signing.Private) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("%w: signing private key size %d", ErrInvalidKey, len(signing.Private))
	}
	xPriv := convertSigningPrivate(ed25519.PrivateKey(signing.Private))
	xPub, err := curve25519.X25519(xPriv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: xPub, Private: xPriv}, nil
}

func (p *Ed25519Provider) ConvertVerkey(verkey []byte) ([]byte, error) {
	if len(verkey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: verkey size %d", ErrInvalidKey, len(verkey))
	}
	point, err := new(edwards25519.Point).SetBytes(verkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return point.BytesMontgomery(), nil
}

func (p *Ed25519Provider) Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing private key size %d", ErrInvalidKey, len(privateKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

func (p *Ed25519Provider) Verify(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: verkey size %d", ErrInvalidKey, len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: signature size %d", ErrInvalidSignatureFormat, len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
}

func (p *Ed25519Provider) GenerateNonce() ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func (p *Ed25519Provider) NonceSize() int {
	return chacha20poly1305.NonceSizeX
}

func (p *Ed25519Provider) Encrypt(privateKey, publicKey, message, nonce []byte) ([]byte, error) {
	aead, err := p.boxAEAD(privateKey, publicKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidNonce, len(nonce))
	}
	return aead.Seal(nil, nonce, message, nil), nil
}

func (p *Ed25519Provider) Decrypt(privateKey, publicKey, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := p.boxAEAD(privateKey, publicKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidNonce, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (p *Ed25519Provider) boxAEAD(privateKey, publicKey []byte) (cipher.AEAD, error) {
	if len(privateKey) != curve25519.ScalarSize {
		return nil, fmt.Errorf("%w: encryption private key size %d", ErrInvalidKey, len(privateKey))
	}
	if len(publicKey) != curve25519.PointSize {
		return nil, fmt.Errorf("%w: encryption public key size %d", ErrInvalidKey, len(publicKey))
	}
	shared, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return chacha20poly1305.NewX(kdf32(shared, []byte(hkdfInfoBox)))
}

// convertSigningPrivate maps an ed25519 private key onto its X25519 scalar,
// clamped per RFC 7748.
func convertSigningPrivate(priv ed25519.PrivateKey) []byte {
	digest := sha512.Sum512(priv.Seed())
	scalar := digest[:curve25519.ScalarSize]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return append([]byte(nil), scalar...)
}

func kdf32(input, info []byte) []byte {
	reader := hkdf.New(sha256.New, input, nil, info)
	out := make([]byte, chacha20poly1305.KeySize)
	_, _ = io.ReadFull(reader, out)
	return out
}
