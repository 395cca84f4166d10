package modcache

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/aweris/modcache/internal/compression"
	"github.com/aweris/modcache/internal/mmap"
)

var (
	errReadOnlyRoot = fmt.Errorf("cache root is read-only: %w", fs.ErrPermission)
	errFileRoot     = fmt.Errorf("cache root already points to a file: %w", fs.ErrPermission)
)

// FileSystemCache is a Cache rooted at a directory.
//
// Storage layout:
//
//	root/
//	  fast-jit/
//	    3f9a...  (one serialized artifact per input digest)
//	  slow-aot/
//	    77c0...
//
// Each backend has its own namespace directory, so an artifact can only be
// found by a load for the backend that stored it.
//
// There is no locking: concurrent stores of one key leave whichever write
// lands last, and a load racing a store can observe a partial file.
type FileSystemCache struct {
	root           string
	defaultBackend Backend
	registry       *Registry
	compressor     *compression.Compressor
}

var _ Cache = (*FileSystemCache)(nil)

// New opens a cache rooted at path, creating the directory and its parents
// if it does not exist. An existing path must be a writable directory;
// otherwise New fails with an error matching fs.ErrPermission.
//
// New is a trust boundary. It performs no integrity verification of the
// artifacts already under path beyond what deserialization checks, and loads
// hand their bytes to the backend's loader as executable code. The caller
// asserts that nothing else has tampered with or corrupted the directory.
func New(path string, opts ...Option) (*FileSystemCache, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := options.DefaultBackend.Validate(); err != nil {
		return nil, fmt.Errorf("default backend: %w", err)
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create cache root: %w", err)
		}
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, &fs.PathError{Op: "open cache", Path: root, Err: errFileRoot}
	case info.Mode().Perm()&0o222 == 0:
		return nil, &fs.PathError{Op: "open cache", Path: root, Err: errReadOnlyRoot}
	}

	compressor, err := compression.NewCompressor(compression.Level(options.CompressionLevel))
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}

	return &FileSystemCache{
		root:           root,
		defaultBackend: options.DefaultBackend,
		registry:       options.Registry,
		compressor:     compressor,
	}, nil
}

// Root returns the absolute cache root.
func (c *FileSystemCache) Root() string { return c.root }

// DefaultBackend returns the backend used by Load.
func (c *FileSystemCache) DefaultBackend() Backend { return c.defaultBackend }

// Path returns the file an artifact for key under backend is stored at.
func (c *FileSystemCache) Path(key Digest, backend Backend) string {
	return filepath.Join(c.root, backend.String(), key.Encode())
}

func (c *FileSystemCache) Load(key Digest) (Module, error) {
	return c.LoadWithBackend(key, c.defaultBackend)
}

func (c *FileSystemCache) LoadWithBackend(key Digest, backend Backend) (Module, error) {
	if err := backend.Validate(); err != nil {
		return nil, err
	}

	artifact, err := c.readArtifact(c.Path(key, backend))
	if err != nil {
		return nil, err
	}
	if artifact.Backend != backend {
		return nil, fmt.Errorf("%w: %s namespace holds a %s artifact", ErrBackendMismatch, backend, artifact.Backend)
	}

	loader, ok := c.registry.LoaderFor(backend)
	if !ok {
		return nil, &UnsupportedBackendError{Backend: backend}
	}

	module, err := loader.Load(artifact)
	if err != nil {
		return nil, fmt.Errorf("load %s module: %w", backend, err)
	}
	return module, nil
}

// readArtifact maps the file at path and decodes it. The mapping is released
// before returning; the artifact owns its payload.
func (c *FileSystemCache) readArtifact(path string) (*Artifact, error) {
	m, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	defer m.Close()

	artifact, err := deserializeArtifact(m.Bytes(), c.compressor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return artifact, nil
}

func (c *FileSystemCache) Store(key Digest, module Module) error {
	backend := module.Backend()
	if err := backend.Validate(); err != nil {
		return err
	}

	artifact, err := module.Artifact()
	if err != nil {
		return fmt.Errorf("serialize %s module: %w", backend, err)
	}
	switch artifact.Backend {
	case backend:
	case "":
		artifact = &Artifact{Backend: backend, Payload: artifact.Payload}
	default:
		return fmt.Errorf("%w: %s module produced a %s artifact", ErrBackendMismatch, backend, artifact.Backend)
	}

	buf, err := serializeArtifact(artifact, c.compressor)
	if err != nil {
		return err
	}

	dir := filepath.Join(c.root, backend.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backend dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, key.Encode()), buf, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Stat reports the stored size of the artifact for key under backend.
func (c *FileSystemCache) Stat(key Digest, backend Backend) (int64, bool) {
	if backend.Validate() != nil {
		return 0, false
	}
	info, err := os.Stat(c.Path(key, backend))
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// Inspect reads the container header of a stored artifact without decoding
// its payload.
func (c *FileSystemCache) Inspect(key Digest, backend Backend) (ArtifactHeader, error) {
	if err := backend.Validate(); err != nil {
		return ArtifactHeader{}, err
	}

	path := c.Path(key, backend)
	m, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ArtifactHeader{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return ArtifactHeader{}, fmt.Errorf("read artifact: %w", err)
	}
	defer m.Close()

	h, err := ReadArtifactHeader(m.Bytes())
	if err != nil {
		return h, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Verify fully decodes the artifact for key under backend and checks that it
// belongs to that backend. No loader is invoked.
func (c *FileSystemCache) Verify(key Digest, backend Backend) error {
	if err := backend.Validate(); err != nil {
		return err
	}
	artifact, err := c.readArtifact(c.Path(key, backend))
	if err != nil {
		return err
	}
	if artifact.Backend != backend {
		return fmt.Errorf("%w: %s namespace holds a %s artifact", ErrBackendMismatch, backend, artifact.Backend)
	}
	return nil
}

// Entries yields every stored artifact as (backend, digest) pairs, sorted by
// backend then digest. Directories that are not valid backend names and
// files that are not encoded digests are skipped.
func (c *FileSystemCache) Entries() iter.Seq2[Backend, Digest] {
	return func(yield func(Backend, Digest) bool) {
		namespaces, err := os.ReadDir(c.root)
		if err != nil {
			return
		}
		for _, ns := range namespaces {
			backend := Backend(ns.Name())
			if !ns.IsDir() || backend.Validate() != nil {
				continue
			}
			files, err := os.ReadDir(filepath.Join(c.root, ns.Name()))
			if err != nil {
				continue
			}
			for _, f := range files {
				if !f.Type().IsRegular() {
					continue
				}
				key, err := ParseDigest(f.Name())
				if err != nil {
					continue
				}
				if !yield(backend, key) {
					return
				}
			}
		}
	}
}

// Close releases the cache's codec resources. The directory is untouched.
func (c *FileSystemCache) Close() error {
	return c.compressor.Close()
}
