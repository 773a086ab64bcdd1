// Package resolver looks up counterpart DIDs that are not cached locally.
// The transport behind a Resolver (ledger client, directory service) is
// external; this package defines the contract plus local building blocks.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
)

var (
	ErrUnresolvable    = errors.New("did cannot be resolved")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Resolution is the public material a resolver returns for a DID.
type Resolution struct {
	Verkey   []byte
	Endpoint string
}

// Resolver fetches public verification material for a DID unknown locally.
// Resolve may perform network I/O; callers bound it with ctx.
type Resolver interface {
	Resolve(ctx context.Context, did string) (Resolution, error)
}

// StaticResolver serves resolutions from a fixed table. It backs local
// networks driven by a manifest and the test suites.
type StaticResolver struct {
	mu      sync.RWMutex
	entries map[string]Resolution
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{entries: make(map[string]Resolution)}
}

func (r *StaticResolver) Add(did string, res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[did] = Resolution{
		Verkey:   append([]byte(nil), res.Verkey...),
		Endpoint: res.Endpoint,
	}
}

func (r *StaticResolver) Resolve(ctx context.Context, did string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.entries[did]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnresolvable, did)
	}
	return Resolution{
		Verkey:   append([]byte(nil), res.Verkey...),
		Endpoint: res.Endpoint,
	}, nil
}

// NormalizeEndpoint validates a transport endpoint. Multiaddr form is parsed
// and echoed back canonically; anything else must be host:port.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", nil
	}
	if strings.HasPrefix(endpoint, "/") {
		addr, err := ma.NewMultiaddr(endpoint)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		return addr.String(), nil
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return endpoint, nil
}
