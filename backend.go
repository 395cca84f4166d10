package modcache

import (
	"fmt"
	"slices"
	"sync"
)

// Backend names the compilation strategy that produced an artifact. Its
// string form is the namespace directory the artifact lives under.
type Backend string

// Built-in backend identities. Embedders may register others.
const (
	BackendFastJIT    Backend = "fast-jit"
	BackendSlowAOT    Backend = "slow-aot"
	BackendOptimizing Backend = "optimizing"
)

// DefaultBackend is used by Load when no other default is configured.
const DefaultBackend = BackendFastJIT

func (b Backend) String() string { return string(b) }

// Validate reports whether b is usable as a single path component. Names
// must match [a-z0-9][a-z0-9._-]* and be at most 64 bytes.
func (b Backend) Validate() error {
	if len(b) == 0 || len(b) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, string(b))
	}
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		case i > 0 && (c == '.' || c == '_' || c == '-'):
		default:
			return fmt.Errorf("%w: %q", ErrInvalidBackend, string(b))
		}
	}
	return nil
}

// Loader rebuilds an executable Module from an Artifact produced by the
// backend it is registered for.
type Loader interface {
	Load(artifact *Artifact) (Module, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(artifact *Artifact) (Module, error)

func (f LoaderFunc) Load(artifact *Artifact) (Module, error) { return f(artifact) }

// Registry maps backends to loaders. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	loaders map[Backend]Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[Backend]Loader)}
}

// DefaultRegistry is used by caches constructed without WithRegistry.
var DefaultRegistry = NewRegistry()

// Register adds l to DefaultRegistry.
func Register(b Backend, l Loader) error {
	return DefaultRegistry.Register(b, l)
}

// Register binds l to b, replacing any previous loader.
func (r *Registry) Register(b Backend, l Loader) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("register %s: nil loader", b)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[b] = l
	return nil
}

// LoaderFor returns the loader registered for b.
func (r *Registry) LoaderFor(b Backend) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[b]
	return l, ok
}

// Backends returns the registered backends in sorted order.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Backend, 0, len(r.loaders))
	for b := range r.loaders {
		out = append(out, b)
	}
	slices.Sort(out)
	return out
}
