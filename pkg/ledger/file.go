package ledger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// File is a ledger stored on disk, guarded by an advisory lock on a sibling
// "<path>.lock" file so that concurrent writers serialize across processes.
type File struct {
	path string
	lock *flock.Flock
}

// NewFile creates a File for the ledger at path. The file itself may not
// exist yet.
func NewFile(path string) *File {
	return &File{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the ledger file path.
func (f *File) Path() string {
	return f.path
}

// LockPath returns the path of the file's lock.
func (f *File) LockPath() string {
	return f.lock.Path()
}

// Lock takes the exclusive lock, blocking while another holder has it.
func (f *File) Lock() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	return nil
}

// Unlock releases the exclusive lock.
func (f *File) Unlock() error {
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock ledger: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the exclusive lock.
func (f *File) WithLock(fn func() error) (err error) {
	if err := f.Lock(); err != nil {
		return err
	}
	defer func() {
		if uerr := f.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}

// Load parses the ledger file. A missing file is an empty ledger.
func (f *File) Load() (*Ledger, error) {
	return Load(f.path)
}

// Append renders txns onto the end of the file, creating it if needed, and
// forces the data to stable storage before returning. Callers are expected to
// hold the lock.
func (f *File) Append(txns []Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger for appending: %w", err)
	}
	defer file.Close()

	sep, err := separator(file)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(file)
	for _, t := range txns {
		if _, err := w.WriteString(sep + t.String()); err != nil {
			return fmt.Errorf("failed to write transaction: %w", err)
		}
		sep = "\n"
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Rewrite replaces the file contents with the canonical rendering of l.
// The new contents are written to a temporary file and renamed into place.
func (f *File) Rewrite(l *Ledger) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(l.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// separator returns what must precede the first appended transaction so that
// the file keeps one blank line between transactions.
func separator(file *os.File) (string, error) {
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}

	last := make([]byte, 1)
	if _, err := file.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read ledger tail: %w", err)
	}
	if last[0] == '\n' {
		return "\n", nil
	}
	return "\n\n", nil
}
