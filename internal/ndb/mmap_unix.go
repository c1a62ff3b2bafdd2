//go:build unix

package ndb

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MMapSource is a read-only memory mapping of a container file.
type MMapSource struct {
	data []byte
}

// OpenMMap maps path read-only into memory.
func OpenMMap(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return &MMapSource{}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap: %w", err)
	}
	return &MMapSource{data: data}, nil
}

// ReadAt copies from the mapping.
func (m *MMapSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("mmap: negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the mapped length.
func (m *MMapSource) Size() int64 {
	return int64(len(m.data))
}

// Close unmaps the file.
func (m *MMapSource) Close() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("failed to munmap: %w", err)
	}
	m.data = nil
	return nil
}
