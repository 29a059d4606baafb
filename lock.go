// OS-level file locking for cross-process coordination.
//
// Readers hold a shared lock while they load a container, and
// UpdateTransform and Compact hold an exclusive one while they patch or
// rewrite it, so a reader never observes a half-applied update. Commits do
// not lock: they write a temporary file and rename it over the target.
//
// A lock belongs to an inode, not a path. Compact and Commit replace the
// file at path by rename, so openLocked re-checks after every acquisition
// that the locked handle is still the file at path and starts over if not.
package densevdb

import (
	"os"
)

// LockMode selects shared (read) or exclusive (write) locking.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// fileLock is an advisory lock on one open file.
type fileLock struct {
	f *os.File
}

// openLocked opens path with flag and takes a lock of the given mode. The
// returned release func unlocks and closes the file.
func openLocked(path string, flag int, mode LockMode) (*os.File, func() error, error) {
	for {
		f, err := os.OpenFile(path, flag, 0)
		if err != nil {
			return nil, nil, err
		}
		l := fileLock{f: f}
		if err := l.lock(mode); err != nil {
			f.Close()
			return nil, nil, err
		}

		stale, err := replaced(f, path)
		if err != nil || stale {
			l.unlock()
			f.Close()
			if err != nil {
				return nil, nil, err
			}
			continue
		}

		release := func() error {
			l.unlock()
			return f.Close()
		}
		return f, release, nil
	}
}

// replaced reports whether path no longer names the file f was opened
// from, which happens when a rename lands while f waits for its lock.
func replaced(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	now, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return !os.SameFile(held, now), nil
}
