package models

import (
	"encoding/json"
	"testing"
)

func TestNormalizeCryptoType(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", CryptoTypeEd25519},
		{"  ", CryptoTypeEd25519},
		{"ed25519", "ed25519"},
		{" secp256k1 ", "secp256k1"},
	}
	for _, tc := range cases {
		if got := NormalizeCryptoType(tc.in); got != tc.want {
			t.Fatalf("NormalizeCryptoType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Version:    1,
		Sender:     "FYmoFw55GeQH7SRFa37dkx1d2dZ3zUF8ckg7wmL7ofN4",
		Nonce:      []byte{1, 2, 3},
		Ciphertext: []byte("opaque"),
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Envelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Version != env.Version || got.Sender != env.Sender {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if string(got.Ciphertext) != "opaque" {
		t.Fatalf("ciphertext mismatch: %q", got.Ciphertext)
	}
}
