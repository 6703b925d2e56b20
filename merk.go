package merk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bsm/merk/proofs"
	"github.com/bsm/merk/table"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned when a key cannot be found.
var ErrNotFound = errors.New("merk: not found")

var (
	errEmptyKey    = errors.New("merk: keys must not be empty")
	errClosed      = errors.New("merk: is closed")
	errNotPristine = errors.New("merk: store is not empty")
)

// Options define store specific options.
type Options struct {
	// LevelDB options for the underlying store.
	// Default: nil (goleveldb defaults).
	LevelDB *opt.Options

	// Sync writes to disk on every Apply.
	// Default: false.
	Sync bool

	// Table options used when writing checkpoints.
	// Default: nil (table defaults).
	Table *table.WriterOptions

	// NodeCacheSize is the number of encoded nodes to keep in memory.
	// Negative values disable the cache.
	// Default: 10000.
	NodeCacheSize int
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.NodeCacheSize == 0 {
		oo.NodeCacheSize = 10000
	}
	return &oo
}

// Merk is a Merkle AVL tree, backed by a leveldb store.
type Merk struct {
	db    *leveldb.DB
	o     *Options
	cache *lru.Cache[string, []byte]

	mu   sync.RWMutex
	root *node
}

// Open opens (or creates) a store at path.
func Open(path string, o *Options) (*Merk, error) {
	o = o.norm()

	db, err := leveldb.OpenFile(path, o.LevelDB)
	if err != nil {
		return nil, fmt.Errorf("merk: open %s: %w", path, err)
	}
	return newMerk(db, o)
}

// OpenMemory creates an empty, in-memory store.
func OpenMemory(o *Options) (*Merk, error) {
	o = o.norm()

	db, err := leveldb.Open(storage.NewMemStorage(), o.LevelDB)
	if err != nil {
		return nil, fmt.Errorf("merk: open memory: %w", err)
	}
	return newMerk(db, o)
}

func newMerk(db *leveldb.DB, o *Options) (*Merk, error) {
	m := &Merk{db: db, o: o}
	if o.NodeCacheSize > 0 {
		cache, err := lru.New[string, []byte](o.NodeCacheSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		m.cache = cache
	}

	root, err := loadRoot(m.source())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.root = root
	return m, nil
}

func (m *Merk) source() source {
	return dbSource{db: m.db, cache: m.cache}
}

// RootHash returns the hash of the whole tree. The hash of an empty
// tree is proofs.NullHash.
func (m *Merk) RootHash() proofs.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.root == nil {
		return proofs.NullHash
	}
	return m.root.Hash()
}

// Get retrieves the value for a key.
// It may return an ErrNotFound error.
func (m *Merk) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.db == nil {
		return nil, errClosed
	}

	t, err := fetchNode(m.source(), key)
	if err != nil {
		return nil, err
	}
	return t.value, nil
}

// Height returns the height of the tree, 0 for an empty tree.
func (m *Merk) Height() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.root == nil {
		return 0
	}
	return m.root.Height()
}

// Apply applies a batch of operations. Entries must be sorted by key in
// strictly ascending order. The batch is applied atomically: on error
// the tree remains in its previous state.
func (m *Merk) Apply(batch []BatchEntry) error {
	if err := validateBatch(batch); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return errClosed
	}

	a := &applier{src: m.source()}
	root, err := a.apply(m.root.detach(), batch)
	if err != nil {
		return err
	}
	if err := m.commit(root, a.deleted); err != nil {
		return err
	}

	m.root = root
	return nil
}

func (m *Merk) commit(root *node, deleted [][]byte) error {
	batch := new(leveldb.Batch)
	for _, key := range deleted {
		batch.Delete(nodeKey(key))
	}

	if root != nil {
		root.commit(batch)
		batch.Put(rootMetaKey, root.key)
	} else {
		batch.Delete(rootMetaKey)
	}

	if err := m.db.Write(batch, &opt.WriteOptions{Sync: m.o.Sync}); err != nil {
		return fmt.Errorf("merk: commit: %w", err)
	}
	if m.cache != nil {
		_ = batch.Replay(cacheReplay{c: m.cache})
	}

	if root != nil {
		root.prune()
	}
	return nil
}

// Chunks creates a ChunkProducer for the current state of the tree. The
// producer reads from a snapshot and is not affected by subsequent writes.
// Producers must be released after use.
func (m *Merk) Chunks() (*ChunkProducer, error) {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()

	if db == nil {
		return nil, errClosed
	}

	s, err := db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("merk: snapshot: %w", err)
	}
	return newChunkProducer(levelSnapshot{s: s})
}

// Close closes the store.
func (m *Merk) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return errClosed
	}

	err := m.db.Close()
	m.db = nil
	m.root = nil
	return err
}
