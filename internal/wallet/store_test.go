package wallet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"aegis-id/go-agent/internal/crypto"
)

func testKeyPair(fill byte) crypto.KeyPair {
	pub := bytes.Repeat([]byte{fill}, 32)
	priv := bytes.Repeat([]byte{fill}, 64)
	return crypto.KeyPair{Public: pub, Private: priv}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "wallet.enc"), "test-secret"),
	}
}

func TestCreateAndGetMyIdentity(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			kp := testKeyPair(1)
			rec := MyIdentity{Did: "D1", Verkey: kp.Public, CryptoType: "ed25519"}
			if err := store.CreateMyIdentity(7, rec, kp); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			got, ok, err := store.GetMyIdentity(7, "D1")
			if err != nil || !ok {
				t.Fatalf("get failed: ok=%v err=%v", ok, err)
			}
			if got.Did != "D1" || !bytes.Equal(got.Verkey, kp.Public) {
				t.Fatalf("unexpected record: %+v", got)
			}

			if err := store.CreateMyIdentity(7, rec, kp); !errors.Is(err, ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}
		})
	}
}

func TestWalletHandleScoping(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			kp := testKeyPair(2)
			rec := MyIdentity{Did: "D1", Verkey: kp.Public, CryptoType: "ed25519"}
			if err := store.CreateMyIdentity(1, rec, kp); err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if _, ok, err := store.GetMyIdentity(2, "D1"); err != nil || ok {
				t.Fatalf("record must not be visible in another wallet: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestReplaceMyKeys(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			old := testKeyPair(3)
			next := testKeyPair(4)
			rec := MyIdentity{Did: "D1", Verkey: old.Public, CryptoType: "ed25519"}
			if err := store.CreateMyIdentity(1, rec, old); err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if err := store.ReplaceMyKeys(1, "D1", "stub", next); err != nil {
				t.Fatalf("replace failed: %v", err)
			}

			got, ok, err := store.GetMyIdentity(1, "D1")
			if err != nil || !ok {
				t.Fatalf("get failed: ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(got.Verkey, next.Public) {
				t.Fatal("verkey should reflect the new key pair")
			}
			if got.CryptoType != "stub" {
				t.Fatalf("crypto type should follow the rotation, got %q", got.CryptoType)
			}

			err = store.WithSigningKey(1, "D1", func(signing crypto.KeyPair) error {
				if !bytes.Equal(signing.Private, next.Private) {
					t.Fatal("signing key should reflect the new key pair")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("with signing key failed: %v", err)
			}

			if err := store.ReplaceMyKeys(1, "missing", "ed25519", next); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestWithSigningKeyUnknownDid(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.WithSigningKey(1, "missing", func(crypto.KeyPair) error { return nil })
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPutTheirIdentityUpserts(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := TheirIdentity{Did: "T1", Verkey: bytes.Repeat([]byte{5}, 32)}
			second := TheirIdentity{Did: "T1", Verkey: bytes.Repeat([]byte{6}, 32), Endpoint: "10.0.0.2:9702"}
			if err := store.PutTheirIdentity(1, first); err != nil {
				t.Fatalf("put 1 failed: %v", err)
			}
			if err := store.PutTheirIdentity(1, second); err != nil {
				t.Fatalf("put 2 failed: %v", err)
			}

			got, ok, err := store.GetTheirIdentity(1, "T1")
			if err != nil || !ok {
				t.Fatalf("get failed: ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(got.Verkey, second.Verkey) || got.Endpoint != "10.0.0.2:9702" {
				t.Fatalf("upsert should keep the latest record, got %+v", got)
			}
		})
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.enc")
	kp := testKeyPair(7)

	store := NewFileStore(path, "secret")
	rec := MyIdentity{Did: "D1", Verkey: kp.Public, CryptoType: "ed25519"}
	if err := store.CreateMyIdentity(9, rec, kp); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reopened := NewFileStore(path, "secret")
	got, ok, err := reopened.GetMyIdentity(9, "D1")
	if err != nil || !ok {
		t.Fatalf("reopened get failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got.Verkey, kp.Public) {
		t.Fatal("persisted verkey mismatch")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should not survive a completed write: %v", err)
	}
}

func TestFileStoreWrongSecretIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.enc")
	kp := testKeyPair(8)
	store := NewFileStore(path, "secret")
	if err := store.CreateMyIdentity(1, MyIdentity{Did: "D1", Verkey: kp.Public}, kp); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	locked := NewFileStore(path, "wrong")
	if _, _, err := locked.GetMyIdentity(1, "D1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
