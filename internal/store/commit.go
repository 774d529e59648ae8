package store

import "fmt"

// CommitBatch writes everything buffered in batch within a single
// transaction and clears the buffer on success. Deletions apply before
// upserts, so a path that was both forgotten and recorded ends up recorded.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, path := range batch.Deleted {
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("commit batch: delete %s: %w", path, err)
		}
	}
	for i := range batch.Files {
		if err := upsertFileTx(tx, &batch.Files[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	batch.Files = nil
	batch.Deleted = nil
	return nil
}
