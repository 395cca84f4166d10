package modcache

import "fmt"

// Module is a compiled module as produced by a backend's compiler. The cache
// only ever holds a serialized copy; it keeps no reference to a Module after
// Store returns.
type Module interface {
	// Backend returns the backend that compiled the module.
	Backend() Backend
	// Artifact returns the module in serializable form.
	Artifact() (*Artifact, error)
}

// PayloadModule is a Module whose compiled form is an opaque byte payload.
// Pipelines that already hold their machine code as bytes can use it as-is
// together with PayloadLoader.
type PayloadModule struct {
	backend Backend
	payload []byte
}

// NewPayloadModule returns a module compiled by backend. The payload is not
// copied.
func NewPayloadModule(backend Backend, payload []byte) *PayloadModule {
	return &PayloadModule{backend: backend, payload: payload}
}

func (m *PayloadModule) Backend() Backend { return m.backend }

// Payload returns the compiled bytes.
func (m *PayloadModule) Payload() []byte { return m.payload }

func (m *PayloadModule) Artifact() (*Artifact, error) {
	return &Artifact{Backend: m.backend, Payload: m.payload}, nil
}

// PayloadLoader returns a Loader that rebuilds PayloadModules for backend.
func PayloadLoader(backend Backend) Loader {
	return LoaderFunc(func(a *Artifact) (Module, error) {
		if a.Backend != backend {
			return nil, fmt.Errorf("%w: loader for %s got %s artifact", ErrBackendMismatch, backend, a.Backend)
		}
		return NewPayloadModule(backend, a.Payload), nil
	})
}
