//go:build !unix

package ndb

import "errors"

// OpenMMap is only available on unix systems.
func OpenMMap(path string) (Source, error) {
	return nil, errors.New("mmap: not supported on this platform")
}
