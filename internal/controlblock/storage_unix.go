//go:build linux || darwin

package controlblock

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapStorage backs a control block with a POSIX shared-memory mapping.
type mmapStorage struct {
	f    *os.File
	data []byte
}

func openMapped(path string, create bool) (*mmapStorage, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	// Shared memory is world read-write: any process that knows the car
	// name must be able to attach regardless of uid/gid.
	f, err := os.OpenFile(path, flags, 0o666)
	if err != nil {
		return nil, err
	}
	if create {
		if err := f.Truncate(recordSize); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, recordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &mmapStorage{f: f, data: data}, nil
}

func createStorage(path string) (storage, error) {
	return openMapped(path, true)
}

func attachStorage(path string) (storage, error) {
	return openMapped(path, false)
}

func (s *mmapStorage) readRecord() Record {
	return unmarshalRecord(s.data)
}

func (s *mmapStorage) writeRecord(r Record) {
	r.marshal(s.data)
	_ = unix.Msync(s.data, unix.MS_ASYNC)
}

func (s *mmapStorage) close() error {
	if err := unix.Munmap(s.data); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

func (s *mmapStorage) unlink() error {
	path := s.f.Name()
	if err := s.close(); err != nil {
		return err
	}
	return os.Remove(path)
}
