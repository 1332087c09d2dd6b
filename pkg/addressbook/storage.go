package addressbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// currentVersion is the on-disk format version.
	currentVersion = 1

	// tempFileSuffix is appended to the file path for atomic writes.
	tempFileSuffix = ".tmp"

	// backupFileSuffix is appended when moving a corrupted file aside.
	backupFileSuffix = ".bak"

	// lockFileSuffix names the lock file used for inter-process
	// synchronization.
	lockFileSuffix = ".lock"
)

// bookFile handles disk persistence for the address book.
type bookFile struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

func newBookFile(path string) *bookFile {
	return &bookFile{
		path:     path,
		lockPath: path + lockFileSuffix,
	}
}

// load reads the book from disk. A missing or empty file yields an empty
// book. A corrupted file is renamed to a .bak and an empty book is
// returned. Holds the inter-process file lock for the duration.
func (f *bookFile) load() (*bookData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lockFile, err := f.acquireFileLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for load: %w", err)
	}
	defer f.releaseFileLock(lockFile)

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyBookData(), nil
		}
		return nil, fmt.Errorf("failed to read address book: %w", err)
	}

	if len(data) == 0 {
		return emptyBookData(), nil
	}

	var book bookData
	if err := json.Unmarshal(data, &book); err != nil {
		backupPath := f.path + backupFileSuffix
		if backupErr := os.Rename(f.path, backupPath); backupErr != nil {
			return nil, fmt.Errorf("failed to parse address book and backup failed: parse error: %w, backup error: %v", err, backupErr)
		}
		return emptyBookData(), nil
	}

	if book.Entries == nil {
		book.Entries = make(map[string]*Entry)
	}

	return &book, nil
}

func emptyBookData() *bookData {
	return &bookData{
		Version: currentVersion,
		Entries: make(map[string]*Entry),
	}
}

// save writes the book atomically: temp file, sync, rename. Holds the
// inter-process file lock for the duration.
func (f *bookFile) save(book *bookData) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lockFile, err := f.acquireFileLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock for save: %w", err)
	}
	defer f.releaseFileLock(lockFile)

	if err := ensureDir(f.path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal address book: %w", err)
	}

	tempPath := f.path + tempFileSuffix
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	// Sync before rename so the rename never publishes a partial file.
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// ensureDir creates the parent directory of path if needed.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
