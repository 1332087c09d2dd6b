//go:build windows

package addressbook

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// acquireFileLock takes an exclusive lock on the lock file via
// LockFileEx, blocking until it is granted. The returned handle must be
// passed to releaseFileLock.
func (f *bookFile) acquireFileLock() (*os.File, error) {
	if err := ensureDir(f.lockPath); err != nil {
		return nil, err
	}

	lockFile, err := os.OpenFile(f.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Exclusive lock on a 1-byte range, blocking (no FAIL_IMMEDIATELY).
	var overlapped windows.Overlapped
	err = windows.LockFileEx(
		windows.Handle(lockFile.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0,
		1,
		0,
		&overlapped,
	)
	if err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return lockFile, nil
}

// releaseFileLock drops the lock and closes the lock file.
func (f *bookFile) releaseFileLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	var overlapped windows.Overlapped
	_ = windows.UnlockFileEx(
		windows.Handle(lockFile.Fd()),
		0,
		1,
		0,
		&overlapped,
	)
	lockFile.Close()
}
