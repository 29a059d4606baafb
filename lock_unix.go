//go:build unix

package densevdb

import (
	"syscall"
)

// lock blocks until flock grants the requested mode. Shared locks work on
// read-only handles, which is how readers open containers.
func (l *fileLock) lock(mode LockMode) error {
	how := syscall.LOCK_SH
	if mode == LockExclusive {
		how = syscall.LOCK_EX
	}
	return syscall.Flock(int(l.f.Fd()), how)
}

func (l *fileLock) unlock() error {
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
