package modcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no artifact is stored for the key under the backend.
	// Errors carrying it also match fs.ErrNotExist.
	ErrNotFound = errors.New("modcache: not found")
	// ErrCorrupted means a stored file does not parse as an artifact.
	ErrCorrupted = errors.New("modcache: corrupted artifact")
	// ErrBackendMismatch means an artifact was produced by a different
	// backend than the one asked to load it.
	ErrBackendMismatch = errors.New("modcache: backend mismatch")
	// ErrUnsupportedBackend means no loader is registered for the backend.
	ErrUnsupportedBackend = errors.New("modcache: unsupported backend")
	// ErrInvalidBackend means a backend name is not a safe path component.
	ErrInvalidBackend = errors.New("modcache: invalid backend name")
)

// UnsupportedBackendError is returned by loads for a backend with no
// registered loader.
type UnsupportedBackendError struct {
	Backend Backend
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupportedBackend, string(e.Backend))
}

func (e *UnsupportedBackendError) Is(target error) bool {
	return target == ErrUnsupportedBackend
}
