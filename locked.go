package rvaindex

import "sync"

// LockedReader serializes access to a Reader with a mutex. A plain Reader is
// single-threaded by design, so callers that must share one instance across
// goroutines can opt into locking instead of constructing a Reader (and a
// file handle) per goroutine.
type LockedReader struct {
	mu sync.Mutex
	r  *Reader
}

// LockReader wraps a reader for concurrent use. The wrapped reader must not
// be used directly afterwards.
func LockReader(r *Reader) *LockedReader {
	return &LockedReader{r: r}
}

// FindFloor calls Reader.FindFloor while holding the lock.
func (l *LockedReader) FindFloor(rva uint64) (uint32, error) {
	l.mu.Lock()
	line, err := l.r.FindFloor(rva)
	l.mu.Unlock()
	return line, err
}

// TotalLines calls Reader.TotalLines while holding the lock.
func (l *LockedReader) TotalLines() uint32 {
	l.mu.Lock()
	n := l.r.TotalLines()
	l.mu.Unlock()
	return n
}

// NumBlocks calls Reader.NumBlocks while holding the lock.
func (l *LockedReader) NumBlocks() int {
	l.mu.Lock()
	n := l.r.NumBlocks()
	l.mu.Unlock()
	return n
}

// Close calls Reader.Close while holding the lock.
func (l *LockedReader) Close() error {
	l.mu.Lock()
	err := l.r.Close()
	l.mu.Unlock()
	return err
}
