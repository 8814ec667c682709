package storage

import (
	"sync"

	"github.com/gofrs/flock"
)

// FileLock provides a process-wide advisory lock used to guarantee the
// SQLite backend's single-writer discipline alongside its in-process
// mutex.
type FileLock struct {
	path string
	flk  *flock.Flock
	mu   sync.Mutex
}

// NewFileLock creates a new file lock at path+".lock".
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires an exclusive lock, blocking until it is available.
func (l *FileLock) Lock() error {
	l.mu.Lock()
	l.flk = flock.New(l.path)
	if err := l.flk.Lock(); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}
	l.flk = flock.New(l.path)
	ok, err := l.flk.TryLock()
	if err != nil || !ok {
		l.mu.Unlock()
		return false
	}
	return true
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l.flk == nil {
		return nil
	}
	err := l.flk.Unlock()
	l.flk = nil
	l.mu.Unlock()
	return err
}
