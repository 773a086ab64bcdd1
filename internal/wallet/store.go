// Package wallet holds identity records scoped by an opaque wallet handle.
// Secret key material never leaves the store as a plain return value; callers
// reach it only through the mediated WithSigningKey call.
package wallet

import (
	"errors"

	"aegis-id/go-agent/internal/crypto"
)

var (
	ErrNotFound      = errors.New("identity record not found")
	ErrAlreadyExists = errors.New("identity record already exists")
	ErrUnavailable   = errors.New("wallet storage unavailable")
)

// Handle identifies an open, authenticated secret-storage scope. Records are
// never visible across handles.
type Handle int

// MyIdentity is the public view of an owned identity record.
type MyIdentity struct {
	Did        string
	Verkey     []byte
	CryptoType string
}

// TheirIdentity is a cached counterpart record. It carries public material
// only.
type TheirIdentity struct {
	Did        string
	Verkey     []byte
	CryptoType string
	Endpoint   string
}

type Store interface {
	// CreateMyIdentity commits a new owned record atomically and fails with
	// ErrAlreadyExists when the did is taken in this wallet.
	CreateMyIdentity(h Handle, rec MyIdentity, signing crypto.KeyPair) error

	GetMyIdentity(h Handle, did string) (MyIdentity, bool, error)

	// ReplaceMyKeys atomically swaps the record's key material and crypto
	// type tag. The did is unchanged; the verkey becomes signing.Public.
	ReplaceMyKeys(h Handle, did, cryptoType string, signing crypto.KeyPair) error

	// WithSigningKey runs fn with the record's signing key pair. The key
	// slices are only valid for the duration of the call.
	WithSigningKey(h Handle, did string, fn func(signing crypto.KeyPair) error) error

	// PutTheirIdentity upserts a counterpart record. Repeated calls for the
	// same did update in place.
	PutTheirIdentity(h Handle, rec TheirIdentity) error

	GetTheirIdentity(h Handle, did string) (TheirIdentity, bool, error)
}

func copyMyIdentity(rec MyIdentity) MyIdentity {
	rec.Verkey = append([]byte(nil), rec.Verkey...)
	return rec
}

func copyTheirIdentity(rec TheirIdentity) TheirIdentity {
	rec.Verkey = append([]byte(nil), rec.Verkey...)
	return rec
}

func copyKeyPair(kp crypto.KeyPair) crypto.KeyPair {
	return crypto.KeyPair{
		Public:  append([]byte(nil), kp.Public...),
		Private: append([]byte(nil), kp.Private...),
	}
}
