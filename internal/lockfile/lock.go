// Package lockfile provides the database-level advisory file lock used to
// exclude checkpointing while a transaction is open (spec.md §4.4: "a
// single file-level read lock is held by the transaction to exclude
// checkpoint"). It has nothing to do with the in-process per-entry/per-index
// locks in internal/lockmgr — this is a single OS-level flock on the
// database's lock file (<db>.lock), shared by every open read/write transaction
// and taken exclusively, briefly, by the checkpoint routine.
package lockfile

import (
	"errors"
	"os"
)

// ErrLockBusy is returned by the NonBlock variants when a conflicting lock
// is already held by another holder.
var ErrLockBusy = errors.New("lockfile: busy, held by another holder")

// File wraps an *os.File opened purely to hold an advisory lock on it.
type File struct {
	f *os.File
}

// Open opens (creating if necessary) the file at path for locking.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

// Close releases any held lock and closes the underlying file.
func (lf *File) Close() error {
	_ = flockUnlock(lf.f)
	return lf.f.Close()
}

// LockShared blocks until a shared lock is acquired. Many transactions may
// hold the shared lock concurrently.
func (lf *File) LockShared() error {
	return flockSharedBlocking(lf.f)
}

// LockSharedNonBlock acquires a shared lock without blocking, returning
// ErrLockBusy if an exclusive holder is present.
func (lf *File) LockSharedNonBlock() error {
	return flockSharedNonBlock(lf.f)
}

// LockExclusive blocks until an exclusive lock is acquired. Used by
// checkpoint: it must wait for every in-flight transaction's shared lock to
// drain before it may proceed.
func (lf *File) LockExclusive() error {
	return flockExclusiveBlocking(lf.f)
}

// LockExclusiveNonBlock acquires an exclusive lock without blocking,
// returning ErrLockBusy if any holder (shared or exclusive) is present.
func (lf *File) LockExclusiveNonBlock() error {
	return flockExclusiveNonBlock(lf.f)
}

// Unlock releases whatever lock this handle currently holds.
func (lf *File) Unlock() error {
	return flockUnlock(lf.f)
}
