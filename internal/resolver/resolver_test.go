package resolver

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver()
	verkey := bytes.Repeat([]byte{1}, 32)
	r.Add("D1", Resolution{Verkey: verkey, Endpoint: "10.0.0.2:9702"})

	res, err := r.Resolve(context.Background(), "D1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !bytes.Equal(res.Verkey, verkey) || res.Endpoint != "10.0.0.2:9702" {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	if _, err := r.Resolve(context.Background(), "missing"); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}
}

func TestStaticResolverHonorsContext(t *testing.T) {
	r := NewStaticResolver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, "D1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateLimitedDeniesBeyondBurst(t *testing.T) {
	inner := NewStaticResolver()
	inner.Add("D1", Resolution{Verkey: bytes.Repeat([]byte{2}, 32)})
	limited := NewRateLimited(inner, 1, 2, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := limited.Resolve(context.Background(), "D1"); err != nil {
			t.Fatalf("resolve %d should pass: %v", i, err)
		}
	}
	if _, err := limited.Resolve(context.Background(), "D1"); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected rate limit denial, got %v", err)
	}

	// Independent DIDs hold independent buckets.
	inner.Add("D2", Resolution{Verkey: bytes.Repeat([]byte{3}, 32)})
	if _, err := limited.Resolve(context.Background(), "D2"); err != nil {
		t.Fatalf("other did should not be limited: %v", err)
	}
}

func TestNewRateLimitedPassThroughOnZeroLimits(t *testing.T) {
	inner := NewStaticResolver()
	if got := NewRateLimited(inner, 0, 0, 0); got != Resolver(inner) {
		t.Fatal("zero limits should return the inner resolver")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"10.0.0.2:9702", "10.0.0.2:9702", false},
		{"/dns4/ledger.example.org/tcp/9702", "/dns4/ledger.example.org/tcp/9702", false},
		{"/bogus/proto", "", true},
		{"no-port", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeEndpoint(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidEndpoint) {
				t.Fatalf("%q: expected ErrInvalidEndpoint, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %q, want %q", tc.in, got, tc.want)
		}
	}
}
