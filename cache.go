package modcache

// Cache stores and loads compiled modules keyed by the digest of their
// input.
type Cache interface {
	// Load loads a module using the cache's default backend. It is
	// equivalent to LoadWithBackend(key, default).
	Load(key Digest) (Module, error)
	// LoadWithBackend loads the module stored for key under backend and
	// rebuilds it with backend's loader.
	LoadWithBackend(key Digest, backend Backend) (Module, error)
	// Store persists module under its own backend, replacing any artifact
	// already stored for key there.
	Store(key Digest, module Module) error
}
