package ndb

import (
	"fmt"
	"io"
	"os"
)

// Source is the random-access byte source a container is read from.
type Source interface {
	io.ReaderAt
	io.Closer
}

// OpenFile opens path for positional reads through the file descriptor.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

type nopCloser struct {
	io.ReaderAt
}

func (nopCloser) Close() error { return nil }

// NopCloser wraps a ReaderAt that needs no closing, such as a bytes.Reader.
func NopCloser(r io.ReaderAt) Source {
	return nopCloser{r}
}
