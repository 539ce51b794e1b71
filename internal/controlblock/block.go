package controlblock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/kempy-elevator/fabric/internal/floor"
)

// BaseDir is the POSIX shared-memory mount point a control block is
// stored under, named "car<name>". It is a var, not a const, so tests
// (and environments without /dev/shm) can redirect it to a scratch
// directory.
var BaseDir = "/dev/shm"

func shmPath(name string) string {
	dir := BaseDir
	if _, err := os.Stat(dir); err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "car"+name)
}

func lockPath(name string) string {
	return shmPath(name) + ".lock"
}

// storage is the OS-specific byte region backing a Record. Two
// implementations exist: an mmap'd region on unix (storage_unix.go)
// and a plain ReadAt/WriteAt file region elsewhere (storage_other.go).
type storage interface {
	readRecord() Record
	writeRecord(Record)
	close() error
	unlink() error
}

// Block is a typed, scoped handle to a named control block. It enforces
// acquire/mutate/broadcast/release around every access so callers cannot
// forget to release the cross-process lock.
type Block struct {
	name    string
	lock    *flock.Flock
	storage storage
}

// Create creates and initialises a new control block for the given car
// name: current and destination floor both start at lowest, status
// Closed, all flags cleared.
func Create(name string, r floor.Range) (*Block, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("controlblock: create %s: %w", name, err)
	}
	st, err := createStorage(shmPath(name))
	if err != nil {
		return nil, fmt.Errorf("controlblock: create %s: %w", name, err)
	}
	b := &Block{name: name, lock: flock.New(lockPath(name)), storage: st}

	init := Record{
		Version:          1,
		CurrentFloor:     int32(r.Lowest),
		DestinationFloor: int32(r.Lowest),
		Lowest:           int32(r.Lowest),
		Highest:          int32(r.Highest),
		Status:           Closed,
		MtimeUnixNano:    time.Now().UnixNano(),
	}
	if err := b.withLock(func() error {
		b.storage.writeRecord(init)
		return nil
	}); err != nil {
		_ = st.close()
		return nil, err
	}
	return b, nil
}

// Attach opens an existing control block by car name, for use by the
// internal CLI.
func Attach(name string) (*Block, error) {
	st, err := attachStorage(shmPath(name))
	if err != nil {
		return nil, fmt.Errorf("controlblock: unable to access car %s: %w", name, err)
	}
	return &Block{name: name, lock: flock.New(lockPath(name)), storage: st}, nil
}

// Close releases local resources (unmaps memory, closes file descriptors)
// without removing the shared memory object itself.
func (b *Block) Close() error {
	return b.storage.close()
}

// Unlink removes the shared memory object and lock file. Only the owning
// car process calls this, on shutdown.
func (b *Block) Unlink() error {
	if err := b.storage.unlink(); err != nil {
		return err
	}
	if err := os.Remove(lockPath(b.name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *Block) withLock(fn func() error) error {
	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("controlblock: lock %s: %w", b.name, err)
	}
	defer func() { _ = b.lock.Unlock() }()
	return fn()
}

// Snapshot returns a consistent copy of the record under the lock.
func (b *Block) Snapshot() (Record, error) {
	var rec Record
	err := b.withLock(func() error {
		rec = b.storage.readRecord()
		return nil
	})
	return rec, err
}

// Stat is a cheap summary of a Snapshot for metrics export: the version
// counter and the wall-clock time of the last mutation, without exposing
// the full Record to callers that only need freshness.
type Stat struct {
	Version int64
	Mtime   time.Time
}

// Stat returns the block's current version and last-mutation time.
func (b *Block) Stat() (Stat, error) {
	rec, err := b.Snapshot()
	if err != nil {
		return Stat{}, err
	}
	return Stat{Version: rec.Version, Mtime: time.Unix(0, rec.MtimeUnixNano)}, nil
}

// Mutate acquires the lock, applies fn to a copy of the current record,
// writes the result back with a bumped version (the broadcast), and
// releases the lock. fn returning an error aborts the write.
func (b *Block) Mutate(fn func(*Record) error) error {
	return b.withLock(func() error {
		rec := b.storage.readRecord()
		if err := fn(&rec); err != nil {
			return err
		}
		rec.Version++
		rec.MtimeUnixNano = time.Now().UnixNano()
		b.storage.writeRecord(rec)
		return nil
	})
}

// pollInterval bounds how long WaitFor can miss a change; spurious wakeups
// are permitted, so a short poll satisfies the broadcast-plus-waiter-
// revalidation contract without a real condvar.
const pollInterval = 5 * time.Millisecond

// WaitFor blocks until predicate(record) is true, the record's version
// changes and predicate holds, ctx is cancelled, or an error occurs. It
// never holds the lock across the sleep: the mutex is released before any
// blocking wait and re-acquired only to snapshot.
func (b *Block) WaitFor(ctx context.Context, predicate func(Record) bool) (Record, error) {
	for {
		rec, err := b.Snapshot()
		if err != nil {
			return Record{}, err
		}
		if predicate(rec) {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
