package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cas-go/internal/cas"
	"cas-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// FlakyVault fails the first Failures chunk puts with a storage I/O error
// and then delegates to the wrapped vault.
type FlakyVault struct {
	cas.Vault

	mu       sync.Mutex
	failures int
	puts     int
}

// NewFlakyVault wraps v so that the first failures puts fail.
func NewFlakyVault(v cas.Vault, failures int) *FlakyVault {
	return &FlakyVault{Vault: v, failures: failures}
}

func (f *FlakyVault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	f.mu.Lock()
	f.puts++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: injected put failure", cas.ErrStorageIO)
	}
	return f.Vault.PutChunk(ctx, digest, r, size)
}

// Puts returns the number of PutChunk calls, failed ones included.
func (f *FlakyVault) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// GatedVault can hold chunk puts at a gate so tests can keep an upload in
// flight. The gate starts open.
type GatedVault struct {
	cas.Vault

	mu      sync.Mutex
	gate    chan struct{} // nil while open
	entered chan struct{}
}

// NewGatedVault wraps v with an open gate.
func NewGatedVault(v cas.Vault) *GatedVault {
	return &GatedVault{Vault: v, entered: make(chan struct{}, 1024)}
}

func (g *GatedVault) PutChunk(ctx context.Context, digest string, r io.Reader, size int64) error {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.Vault.PutChunk(ctx, digest, r, size)
}

// Hold closes the gate. Puts that arrive afterwards block until Release.
func (g *GatedVault) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate == nil {
		g.gate = make(chan struct{})
	}
}

// Release opens the gate and lets every held put through.
func (g *GatedVault) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate != nil {
		close(g.gate)
		g.gate = nil
	}
}

// Entered is signalled each time a put blocks at a closed gate.
func (g *GatedVault) Entered() <-chan struct{} { return g.entered }
