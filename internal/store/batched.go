package store

import "sync"

// BatchedStore buffers file state from parallel rewrite workers so it can be
// committed in one transaction after the worker phase.
//
// Thread safety: the mutex protects the buffer. Reads go through the
// underlying Store.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	Files   []FileState
	Deleted []string
}

// NewBatchedStore creates a BatchedStore backed by s.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{store: s}
}

// Record buffers f.
func (b *BatchedStore) Record(f FileState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Files = append(b.Files, f)
}

// Forget buffers the removal of path.
func (b *BatchedStore) Forget(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deleted = append(b.Deleted, path)
}

// Len returns the number of buffered changes.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Files) + len(b.Deleted)
}
