//go:build !(linux || darwin)

package controlblock

import "os"

// fileStorage is the portable fallback for platforms without a POSIX
// shared-memory mapping: a plain file accessed with ReadAt/WriteAt. It
// still gives correct cross-process semantics (the gofrs/flock lock in
// Block serialises access); it just copies bytes instead of mapping them.
type fileStorage struct {
	f *os.File
}

func createStorage(path string) (storage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(recordSize); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileStorage{f: f}, nil
}

func attachStorage(path string) (storage, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, err
	}
	return &fileStorage{f: f}, nil
}

func (s *fileStorage) readRecord() Record {
	buf := make([]byte, recordSize)
	_, _ = s.f.ReadAt(buf, 0)
	return unmarshalRecord(buf)
}

func (s *fileStorage) writeRecord(r Record) {
	buf := make([]byte, recordSize)
	r.marshal(buf)
	_, _ = s.f.WriteAt(buf, 0)
}

func (s *fileStorage) close() error {
	return s.f.Close()
}

func (s *fileStorage) unlink() error {
	path := s.f.Name()
	if err := s.f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
