//go:build !linux || sim

package main

import (
	"os"
	"sync"

	"github.com/rtrace/linelight/x/devices"
	"github.com/rtrace/linelight/x/devices/mb85rs"
)

// fileStore gives the sim board a persistent store: a flat file with the
// FRAM's size and byte-addressable semantics.
type fileStore struct {
	mu   sync.Mutex
	path string
}

func newFileStore(path string) *fileStore {
	return &fileStore{path: path}
}

func (f *fileStore) open() (*os.File, error) {
	fd, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := fd.Truncate(mb85rs.Size); err != nil {
		fd.Close()
		return nil, err
	}
	return fd, nil
}

func (f *fileStore) Read(address uint32, p []byte) error {
	if int64(address)+int64(len(p)) > mb85rs.Size {
		return devices.ErrInvalidSize
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, err := f.open()
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = fd.ReadAt(p, int64(address))
	return err
}

func (f *fileStore) Write(address uint32, p []byte) error {
	if int64(address)+int64(len(p)) > mb85rs.Size {
		return devices.ErrInvalidSize
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd, err := f.open()
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = fd.WriteAt(p, int64(address))
	return err
}

func (f *fileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.path, make([]byte, mb85rs.Size), 0o644)
}

func (f *fileStore) Size() uint32 { return mb85rs.Size }
