package models

import "strings"

const (
	CryptoTypeEd25519 = "ed25519"
)

// DIDRequest is the JSON payload accepted by create-and-store-my-did and
// replace-keys. All fields are optional; a fresh random identity is created
// when the payload is empty.
type DIDRequest struct {
	Did        string `json:"did,omitempty"`
	Seed       string `json:"seed,omitempty"`
	CryptoType string `json:"crypto_type,omitempty"`
}

// TheirIdentity is the JSON payload accepted by store-their-did and the shape
// returned for cached counterpart records. Verkey is base58-encoded.
type TheirIdentity struct {
	Did        string `json:"did"`
	Verkey     string `json:"verkey"`
	CryptoType string `json:"crypto_type,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// CreatedIdentity is returned by create-and-store-my-did. Keys are
// base58-encoded.
type CreatedIdentity struct {
	Did           string `json:"did"`
	Verkey        string `json:"verkey"`
	EncryptionKey string `json:"encryption_key"`
}

// ReplacedKeys is returned by replace-keys.
type ReplacedKeys struct {
	Verkey        string `json:"verkey"`
	EncryptionKey string `json:"encryption_key"`
}

// Envelope is the wire container for an encrypted message. Sender carries the
// sender's base58 verkey, or a DID the recipient must resolve. Nonce and
// Ciphertext marshal as base64 through encoding/json.
type Envelope struct {
	Version    uint8  `json:"v"`
	Sender     string `json:"sender"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// NormalizeCryptoType maps an empty or padded tag to the default scheme.
func NormalizeCryptoType(raw string) string {
	tag := strings.TrimSpace(raw)
	if tag == "" {
		return CryptoTypeEd25519
	}
	return tag
}
