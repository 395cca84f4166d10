// Package mmap maps files read-only into memory.
//
// A Mapping exposes storage-owned memory. The bytes stay valid only until
// Close, and only while no other process truncates or rewrites the file;
// nothing here protects against concurrent external mutation. Copy anything
// that has to outlive the mapping.
package mmap

import (
	"fmt"
	"os"
)

// Mapping is a read-only view of a file's contents.
type Mapping struct {
	data   []byte
	unmap  func([]byte) error
	closed bool
}

// Open maps the named file.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Map(f)
}

// Map maps the whole of f. The file may be closed once Map returns.
func Map(f *os.File) (*Mapping, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap %s: file too large (%d bytes)", f.Name(), size)
	}

	return mapFile(f, int(size))
}

// Bytes returns the mapped contents. The slice must not be written to.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Len returns the mapped length.
func (m *Mapping) Len() int {
	return len(m.data)
}

// Close releases the mapping. It is safe to call more than once.
func (m *Mapping) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	data := m.data
	m.data = nil
	if m.unmap == nil || data == nil {
		return nil
	}
	return m.unmap(data)
}
