//go:build !windows

package addressbook

import (
	"fmt"
	"os"
	"syscall"
)

// acquireFileLock takes an exclusive flock on the lock file, blocking
// until it is granted. The returned handle must be passed to
// releaseFileLock.
func (f *bookFile) acquireFileLock() (*os.File, error) {
	if err := ensureDir(f.lockPath); err != nil {
		return nil, err
	}

	lockFile, err := os.OpenFile(f.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return lockFile, nil
}

// releaseFileLock drops the flock and closes the lock file.
func (f *bookFile) releaseFileLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	lockFile.Close()
}
