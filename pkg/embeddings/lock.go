package embeddings

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Locking architecture.
//
// Bytes [0, HeadReserved) of a store file are the coordination range:
// Open's bootstrap and Cursor.Update both take an exclusive lock over it
// before touching the header or a record's identity-critical prefix.
//
//  1. fileRegistry — an in-process, per-(dev,ino) mutex. POSIX fcntl byte
//     range locks are associated with the (process, inode) pair, not the
//     file descriptor: a second lock request from the *same process*,
//     even on a different fd, silently succeeds and does not exclude the
//     first holder. Without this in-process mutex, two Store/Cursor
//     handles open on the same file in one process could both believe
//     they hold the header range.
//  2. the OS-level byte-range lock itself, acquired via
//     golang.org/x/sys/unix's FcntlFlock (fcntl(2) F_SETLK/F_SETLKW),
//     which excludes other processes. On a read-only descriptor (a
//     ModeRead Open) this is a shared read lock, which still excludes
//     other processes' exclusive holders.
//
// Lock ordering: fileRegistry entry mutex, then the OS lock.
var fileRegistry sync.Map // map[fileIdentity]*registryEntry

type fileIdentity struct {
	dev uint64
	ino uint64
}

type registryEntry struct {
	mu        sync.Mutex
	openCount atomic.Int32
}

func getFileIdentity(f *os.File) (fileIdentity, error) {
	var stat syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &stat); err != nil {
		return fileIdentity{}, fmt.Errorf("%w: fstat: %v", ErrIo, err)
	}

	//nolint:unconvert // Dev/Ino width differs across unix platforms.
	return fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}, nil
}

func acquireRegistryEntry(id fileIdentity) *registryEntry {
	for {
		if val, ok := fileRegistry.Load(id); ok {
			entry := val.(*registryEntry)

			for {
				old := entry.openCount.Load()
				if old <= 0 {
					break // being torn down; fall through and create a fresh one
				}

				if entry.openCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}
		}

		entry := &registryEntry{}
		entry.openCount.Store(1)

		if _, loaded := fileRegistry.LoadOrStore(id, entry); !loaded {
			return entry
		}
	}
}

func releaseRegistryEntry(id fileIdentity, entry *registryEntry) {
	if entry.openCount.Add(-1) <= 0 {
		fileRegistry.CompareAndDelete(id, entry)
	}
}

// headerLock represents a held exclusive lock on [0, HeadReserved) of a
// store file. Release with Unlock.
type headerLock struct {
	id    fileIdentity
	entry *registryEntry
	fd    int
}

// lockHeaderRange blocks until it holds an exclusive byte-range lock on
// [0, HeadReserved) of f. fcntl(2) refuses a write lock on a descriptor not
// open for writing, so when f is read-only the OS-level lock taken is a
// shared read lock instead; the in-process registry mutex is exclusive in
// both cases. Release the returned lock with Unlock on every exit path,
// including error paths.
func lockHeaderRange(f *os.File) (*headerLock, error) {
	id, err := getFileIdentity(f)
	if err != nil {
		return nil, err
	}

	entry := acquireRegistryEntry(id)
	entry.mu.Lock()

	fd := int(f.Fd())

	var lockType int16 = unix.F_WRLCK
	if fl, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0); err == nil && fl&unix.O_ACCMODE == unix.O_RDONLY {
		lockType = unix.F_RDLCK
	}

	flock := unix.Flock_t{
		Type:  lockType,
		Start: 0,
		Len:   HeadReserved,
	}

	if err := fcntlFlockRetryEINTR(fd, unix.F_SETLKW, &flock); err != nil {
		entry.mu.Unlock()
		releaseRegistryEntry(id, entry)

		return nil, fmt.Errorf("%w: lock header range: %v", ErrIo, err)
	}

	return &headerLock{id: id, entry: entry, fd: fd}, nil
}

// Unlock releases the header-range lock. Safe to call once; calling it a
// second time is a programming error and is not guarded against, mirroring
// os.File.Close semantics.
func (l *headerLock) Unlock() error {
	flock := unix.Flock_t{
		Type:  unix.F_UNLCK,
		Start: 0,
		Len:   HeadReserved,
	}

	err := fcntlFlockRetryEINTR(l.fd, unix.F_SETLK, &flock)

	l.entry.mu.Unlock()
	releaseRegistryEntry(l.id, l.entry)

	if err != nil {
		return fmt.Errorf("%w: unlock header range: %v", ErrIo, err)
	}

	return nil
}

// fcntlFlockRetryEINTR retries unix.FcntlFlock across EINTR, the same way
// the reference Locker retries syscall.Flock: a signal interrupting the
// blocking wait is not a failure, just a reason to ask again.
func fcntlFlockRetryEINTR(fd int, cmd int, lk *unix.Flock_t) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = unix.FcntlFlock(uintptr(fd), cmd, lk)
		if err == nil || err != unix.EINTR {
			return err
		}
	}

	return err
}
