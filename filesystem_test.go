package modcache

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, b := range []Backend{BackendFastJIT, BackendSlowAOT} {
		require.NoError(t, r.Register(b, PayloadLoader(b)))
	}
	return r
}

func newTestCache(t *testing.T, opts ...Option) *FileSystemCache {
	t.Helper()
	opts = append([]Option{WithRegistry(testRegistry(t))}, opts...)
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func payloadOf(t *testing.T, m Module) []byte {
	t.Helper()
	pm, ok := m.(*PayloadModule)
	require.True(t, ok, "unexpected module type %T", m)
	return pm.Payload()
}

type failingModule struct{ err error }

func (m failingModule) Backend() Backend             { return BackendFastJIT }
func (m failingModule) Artifact() (*Artifact, error) { return nil, m.err }

type mislabeledModule struct{}

func (mislabeledModule) Backend() Backend { return BackendFastJIT }
func (mislabeledModule) Artifact() (*Artifact, error) {
	return &Artifact{Backend: BackendSlowAOT, Payload: []byte("x")}, nil
}

type unlabeledModule struct{}

func (unlabeledModule) Backend() Backend { return BackendSlowAOT }
func (unlabeledModule) Artifact() (*Artifact, error) {
	return &Artifact{Payload: []byte("unlabeled")}, nil
}

func TestNewCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "cache")

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, root, c.Root())
	assert.Equal(t, DefaultBackend, c.DefaultBackend())
}

func TestNewExistingDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep"), []byte("x"), 0o644))

	c, err := New(root)
	require.NoError(t, err)
	defer c.Close()

	_, err = os.Stat(filepath.Join(root, "keep"))
	assert.NoError(t, err)
}

func TestNewRelativePathIsResolved(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := New("cache")
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, filepath.IsAbs(c.Root()))
}

func TestNewOverRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c, err := New(path)
	assert.Nil(t, c)
	require.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), path)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, path, pathErr.Path)
}

func TestNewReadOnlyDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(root, 0o555))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	c, err := New(root)
	assert.Nil(t, c)
	require.ErrorIs(t, err, fs.ErrPermission)
	assert.Contains(t, err.Error(), root)
}

func TestNewInvalidOptions(t *testing.T) {
	_, err := New(t.TempDir(), WithDefaultBackend("No Good"))
	assert.ErrorIs(t, err, ErrInvalidBackend)

	_, err = New(t.TempDir(), WithCompression(99))
	assert.Error(t, err)
}

func TestStoreAndLoad(t *testing.T) {
	c := newTestCache(t)

	input := []byte("0123456789")
	key := Generate(input)
	payload := []byte("compiled fast-jit code")

	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, payload)))

	path := filepath.Join(c.Root(), "fast-jit", key.Encode())
	assert.Equal(t, path, c.Path(key, BackendFastJIT))
	_, err := os.Stat(path)
	require.NoError(t, err)

	m, err := c.Load(key)
	require.NoError(t, err)
	assert.Equal(t, BackendFastJIT, m.Backend())
	assert.Equal(t, payload, payloadOf(t, m))

	m, err = c.LoadWithBackend(key, BackendFastJIT)
	require.NoError(t, err)
	assert.Equal(t, payload, payloadOf(t, m))

	_, err = c.LoadWithBackend(key, BackendSlowAOT)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBackendIsolation(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("module"))

	require.NoError(t, c.Store(key, NewPayloadModule(BackendSlowAOT, []byte("aot"))))

	_, err := c.Load(key)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrCorrupted))

	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, []byte("jit"))))

	jit, err := c.LoadWithBackend(key, BackendFastJIT)
	require.NoError(t, err)
	aot, err := c.LoadWithBackend(key, BackendSlowAOT)
	require.NoError(t, err)

	assert.Equal(t, []byte("jit"), payloadOf(t, jit))
	assert.Equal(t, []byte("aot"), payloadOf(t, aot))
}

func TestLoadMissHasNoSideEffects(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("never stored"))

	for range 3 {
		_, err := c.Load(key)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreOverwrites(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, bytes.Repeat([]byte("first"), 100))))
	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, []byte("second"))))

	files, err := os.ReadDir(filepath.Join(c.Root(), "fast-jit"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	want, err := serializeArtifact(&Artifact{Backend: BackendFastJIT, Payload: []byte("second")}, c.compressor)
	require.NoError(t, err)
	got, err := os.ReadFile(c.Path(key, BackendFastJIT))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	m, err := c.Load(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), payloadOf(t, m))
}

func TestLoadCorrupted(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	dir := filepath.Join(c.Root(), "fast-jit")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for name, data := range map[string][]byte{
		"garbage": []byte("this is not an artifact"),
		"empty":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, key.Encode()), data, 0o644))

			_, err := c.Load(key)
			require.ErrorIs(t, err, ErrCorrupted)
			assert.False(t, errors.Is(err, ErrNotFound))
			assert.ErrorIs(t, c.Verify(key, BackendFastJIT), ErrCorrupted)
		})
	}
}

func TestLoadUnsupportedBackend(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))
	custom := Backend("custom-llvm")

	require.NoError(t, c.Store(key, NewPayloadModule(custom, []byte("code"))))

	_, err := c.LoadWithBackend(key, custom)
	require.ErrorIs(t, err, ErrUnsupportedBackend)

	var unsupported *UnsupportedBackendError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, custom, unsupported.Backend)
	assert.Contains(t, err.Error(), "custom-llvm")

	assert.NoError(t, c.Verify(key, custom))
}

func TestLoadUnsupportedBackendMissFirst(t *testing.T) {
	c := newTestCache(t)

	_, err := c.LoadWithBackend(Generate([]byte("x")), "custom-llvm")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadBackendMismatch(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	data, err := (&Artifact{Backend: BackendSlowAOT, Payload: []byte("aot")}).Serialize()
	require.NoError(t, err)
	dir := filepath.Join(c.Root(), "fast-jit")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, key.Encode()), data, 0o644))

	_, err = c.Load(key)
	assert.ErrorIs(t, err, ErrBackendMismatch)
	assert.ErrorIs(t, c.Verify(key, BackendFastJIT), ErrBackendMismatch)
}

func TestLoaderError(t *testing.T) {
	boom := errors.New("relocation failed")
	r := NewRegistry()
	require.NoError(t, r.Register(BackendFastJIT, LoaderFunc(func(*Artifact) (Module, error) {
		return nil, boom
	})))

	c, err := New(t.TempDir(), WithRegistry(r))
	require.NoError(t, err)
	defer c.Close()

	key := Generate([]byte("input"))
	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, []byte("code"))))

	_, err = c.Load(key)
	assert.ErrorIs(t, err, boom)
}

func TestInvalidBackendNames(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	_, err := c.LoadWithBackend(key, "../etc")
	assert.ErrorIs(t, err, ErrInvalidBackend)

	err = c.Store(key, NewPayloadModule("../escape", []byte("x")))
	assert.ErrorIs(t, err, ErrInvalidBackend)

	_, ok := c.Stat(key, "../etc")
	assert.False(t, ok)

	_, err = os.Stat(filepath.Join(filepath.Dir(c.Root()), "escape"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStoreModuleErrors(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	boom := errors.New("cannot serialize")
	assert.ErrorIs(t, c.Store(key, failingModule{err: boom}), boom)

	assert.ErrorIs(t, c.Store(key, mislabeledModule{}), ErrBackendMismatch)

	_, ok := c.Stat(key, BackendFastJIT)
	assert.False(t, ok)
}

func TestStoreFillsArtifactBackend(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	require.NoError(t, c.Store(key, unlabeledModule{}))

	m, err := c.LoadWithBackend(key, BackendSlowAOT)
	require.NoError(t, err)
	assert.Equal(t, []byte("unlabeled"), payloadOf(t, m))
}

func TestStoreIOError(t *testing.T) {
	c := newTestCache(t)
	key := Generate([]byte("input"))

	// a regular file where the backend directory should be
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "fast-jit"), nil, 0o644))

	err := c.Store(key, NewPayloadModule(BackendFastJIT, []byte("x")))
	require.Error(t, err)

	var pathErr *fs.PathError
	assert.ErrorAs(t, err, &pathErr)
}

func TestWithDefaultBackend(t *testing.T) {
	c := newTestCache(t, WithDefaultBackend(BackendSlowAOT))
	key := Generate([]byte("input"))

	require.NoError(t, c.Store(key, NewPayloadModule(BackendSlowAOT, []byte("aot"))))

	m, err := c.Load(key)
	require.NoError(t, err)
	assert.Equal(t, BackendSlowAOT, m.Backend())
}

func TestCompression(t *testing.T) {
	root := t.TempDir()
	r := testRegistry(t)

	w, err := New(root, WithRegistry(r), WithCompression(CompressionBetter))
	require.NoError(t, err)
	defer w.Close()

	key := Generate([]byte("big input"))
	payload := bytes.Repeat([]byte("\x48\x89\xc7\xe8\x00\x00\x00\x00"), 4096)
	require.NoError(t, w.Store(key, NewPayloadModule(BackendFastJIT, payload)))

	size, ok := w.Stat(key, BackendFastJIT)
	require.True(t, ok)
	assert.Less(t, size, int64(len(payload)))

	h, err := w.Inspect(key, BackendFastJIT)
	require.NoError(t, err)
	assert.True(t, h.Compressed)
	assert.Equal(t, uint64(len(payload)), h.RawSize)

	// a cache opened without compression still reads compressed artifacts
	rd, err := New(root, WithRegistry(r))
	require.NoError(t, err)
	defer rd.Close()

	m, err := rd.Load(key)
	require.NoError(t, err)
	assert.Equal(t, payload, payloadOf(t, m))
}

func TestInspectMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Inspect(Generate([]byte("x")), BackendFastJIT)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntries(t *testing.T) {
	c := newTestCache(t)

	k1 := Generate([]byte("one"))
	k2 := Generate([]byte("two"))
	require.NoError(t, c.Store(k1, NewPayloadModule(BackendSlowAOT, []byte("1"))))
	require.NoError(t, c.Store(k2, NewPayloadModule(BackendSlowAOT, []byte("2"))))
	require.NoError(t, c.Store(k1, NewPayloadModule(BackendFastJIT, []byte("1"))))

	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "fast-jit", "README"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(c.Root(), "Not A Backend"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "Not A Backend", k1.Encode()), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "stray"), nil, 0o644))

	type entry struct {
		backend Backend
		key     string
	}
	var got []entry
	for b, k := range c.Entries() {
		got = append(got, entry{b, k.Encode()})
	}

	aot := []entry{{BackendSlowAOT, k1.Encode()}, {BackendSlowAOT, k2.Encode()}}
	if k2.Encode() < k1.Encode() {
		aot[0], aot[1] = aot[1], aot[0]
	}
	want := append([]entry{{BackendFastJIT, k1.Encode()}}, aot...)
	assert.Equal(t, want, got)

	count := 0
	for range c.Entries() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestFileSystemCacheIsCache(t *testing.T) {
	var c Cache = newTestCache(t)
	key := Generate([]byte("input"))

	require.NoError(t, c.Store(key, NewPayloadModule(BackendFastJIT, []byte("code"))))
	m, err := c.Load(key)
	require.NoError(t, err)
	assert.Equal(t, BackendFastJIT, m.Backend())
}
