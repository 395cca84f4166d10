package modcache

import "github.com/aweris/modcache/internal/compression"

// Compression levels accepted by WithCompression.
const (
	CompressionNone    = int(compression.LevelNone)
	CompressionFastest = int(compression.LevelFastest)
	CompressionDefault = int(compression.LevelDefault)
	CompressionBetter  = int(compression.LevelBetter)
)

// Options configures a FileSystemCache.
type Options struct {
	DefaultBackend   Backend
	Registry         *Registry
	CompressionLevel int
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		DefaultBackend:   DefaultBackend,
		Registry:         DefaultRegistry,
		CompressionLevel: CompressionNone,
	}
}

// WithDefaultBackend sets the backend used by Load.
func WithDefaultBackend(b Backend) Option {
	return func(o *Options) { o.DefaultBackend = b }
}

// WithRegistry sets the loader registry.
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		if r != nil {
			o.Registry = r
		}
	}
}

// WithCompression enables zstd compression of stored payloads. Artifacts
// are readable regardless of the level they were written with.
func WithCompression(level int) Option {
	return func(o *Options) { o.CompressionLevel = level }
}
