package merk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bsm/merk/proofs"
	"github.com/bsm/merk/table"
	"github.com/syndtr/goleveldb/leveldb"
)

// Checkpoint writes the current state of the tree to a table file at
// path. The file is written atomically and can be opened with
// OpenCheckpoint.
func (m *Merk) Checkpoint(path string) error {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()

	if db == nil {
		return errClosed
	}

	s, err := db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("merk: snapshot: %w", err)
	}
	defer s.Release()

	if err := writeCheckpoint(path, s, m.o.Table); err != nil {
		return fmt.Errorf("merk: checkpoint %s: %w", path, err)
	}
	return nil
}

func writeCheckpoint(path string, s *leveldb.Snapshot, o *table.WriterOptions) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	buf := bufio.NewWriter(f)
	w := table.NewWriter(buf, o)

	it := s.NewIterator(nil, nil)
	defer it.Release()

	for it.Next() {
		if err := w.Append(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return err
	}

	if err := w.Close(); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// --------------------------------------------------------------------

// CheckpointReader is a read-only view of a checkpoint file.
type CheckpointReader struct {
	f    *os.File
	r    *table.Reader
	root *node
}

// OpenCheckpoint opens a checkpoint file.
func OpenCheckpoint(path string) (*CheckpointReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r, err := table.NewReader(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("merk: open checkpoint %s: %w", path, err)
	}

	root, err := loadRoot(tableSnapshot{r: r})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("merk: open checkpoint %s: %w", path, err)
	}
	return &CheckpointReader{f: f, r: r, root: root}, nil
}

// RootHash returns the root hash of the checkpointed tree.
func (c *CheckpointReader) RootHash() proofs.Hash {
	if c.root == nil {
		return proofs.NullHash
	}
	return c.root.Hash()
}

// Get retrieves the value for a key.
// It may return an ErrNotFound error.
func (c *CheckpointReader) Get(key []byte) ([]byte, error) {
	t, err := fetchNode(tableSnapshot{r: c.r}, key)
	if err != nil {
		return nil, err
	}
	return t.value, nil
}

// Chunks creates a ChunkProducer for the checkpoint. Producers must be
// released before the checkpoint is closed.
func (c *CheckpointReader) Chunks() (*ChunkProducer, error) {
	return newChunkProducer(tableSnapshot{r: c.r})
}

// Close closes the checkpoint file.
func (c *CheckpointReader) Close() error {
	return c.f.Close()
}
