// Package modcache provides a content-addressed, on-disk cache for compiled
// modules.
//
// A module is compiled once from some input, stored under the digest of that
// input, and loaded back on later runs without recompiling. Artifacts are
// partitioned by the backend that produced them, so a loader is only ever
// handed bytes its own backend wrote.
//
// Basic usage:
//
//	modcache.Register(modcache.BackendFastJIT, myLoader)
//
//	cache, err := modcache.New("/var/cache/myapp/modules")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	key := modcache.Generate(input)
//	module, err := cache.Load(key)
//	if errors.Is(err, modcache.ErrNotFound) {
//	    module = compile(input)
//	    err = cache.Store(key, module)
//	}
//
// Pin a backend explicitly:
//
//	module, err := cache.LoadWithBackend(key, modcache.BackendSlowAOT)
//
// Errors are matched with errors.Is against ErrNotFound, ErrCorrupted,
// ErrBackendMismatch and ErrUnsupportedBackend; I/O failures keep the
// underlying *fs.PathError in their chain.
//
// There is no eviction, size bound or staleness check. Entries stay until
// something outside this package removes them.
package modcache
