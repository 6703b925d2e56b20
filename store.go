package merk

import (
	"bytes"
	"errors"

	"github.com/bsm/merk/table"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// Keyspace layout.
var rootMetaKey = []byte("mroot")

const nodePrefix = 'n'

func nodeKey(key []byte) []byte {
	return append(append(make([]byte, 0, 1+len(key)), nodePrefix), key...)
}

// source is a point-read view of the store.
type source interface {
	// get returns the raw value for a store key or ErrNotFound.
	get(key []byte) ([]byte, error)
}

// snapshot is an immutable view of the store.
type snapshot interface {
	source

	// iterator returns a new raw iterator over all store keys.
	iterator() rawIterator
	release()
}

// rawIterator is the subset of the goleveldb iterator interface used by
// Cursor.
type rawIterator interface {
	First() bool
	Seek(key []byte) bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

var _ rawIterator = (iterator.Iterator)(nil)

func fetchNode(src source, key []byte) (*node, error) {
	rec, err := src.get(nodeKey(key))
	if err != nil {
		return nil, err
	}
	return decodeNode(key, rec)
}

// loadRoot loads the root node, it returns nil for an empty tree.
func loadRoot(src source) (*node, error) {
	key, err := src.get(rootMetaKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	root, err := fetchNode(src, key)
	if errors.Is(err, ErrNotFound) {
		return nil, errMissingRoot
	}
	return root, err
}

var errMissingRoot = errors.New("merk: root node is missing")

// --------------------------------------------------------------------

// dbSource reads from the live store. Values may be shared with the
// cache and must not be modified.
type dbSource struct {
	db    *leveldb.DB
	cache *lru.Cache[string, []byte] // optional
}

func (s dbSource) get(key []byte) ([]byte, error) {
	if s.cache != nil {
		if val, ok := s.cache.Get(string(key)); ok {
			return val, nil
		}
	}

	val, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Add(string(key), val)
	}
	return val, nil
}

// cacheReplay applies committed batches to the cache.
type cacheReplay struct{ c *lru.Cache[string, []byte] }

func (r cacheReplay) Put(key, value []byte) { r.c.Add(string(key), bytes.Clone(value)) }
func (r cacheReplay) Delete(key []byte)     { r.c.Remove(string(key)) }

type levelSnapshot struct{ s *leveldb.Snapshot }

func (s levelSnapshot) get(key []byte) ([]byte, error) {
	val, err := s.s.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (s levelSnapshot) iterator() rawIterator { return s.s.NewIterator(nil, nil) }
func (s levelSnapshot) release()              { s.s.Release() }

// --------------------------------------------------------------------

// tableSnapshot reads from an immutable checkpoint table. The table is
// owned by the checkpoint, release is a no-op.
type tableSnapshot struct{ r *table.Reader }

func (s tableSnapshot) get(key []byte) ([]byte, error) {
	val, err := s.r.Get(key)
	if err == table.ErrNotFound {
		return nil, ErrNotFound
	}
	return val, err
}

func (s tableSnapshot) iterator() rawIterator { return &tableIterator{r: s.r} }
func (tableSnapshot) release()                {}

// tableIterator adapts table iterators to the rawIterator interface.
type tableIterator struct {
	r     *table.Reader
	it    *table.Iterator
	valid bool
	err   error
}

func (i *tableIterator) First() bool { return i.Seek(nil) }

func (i *tableIterator) Seek(key []byte) bool {
	i.reset()

	it, err := i.r.Seek(key)
	if err != nil {
		i.err = err
		return false
	}
	i.it = it
	return i.advance()
}

func (i *tableIterator) Next() bool {
	if i.it == nil {
		if i.err != nil {
			return false
		}
		return i.First()
	}
	return i.advance()
}

func (i *tableIterator) Valid() bool { return i.valid }

func (i *tableIterator) Key() []byte {
	if !i.valid {
		return nil
	}
	return i.it.Key()
}

func (i *tableIterator) Value() []byte {
	if !i.valid {
		return nil
	}
	return i.it.Value()
}

func (i *tableIterator) Error() error { return i.err }

func (i *tableIterator) Release() {
	i.reset()
	i.err = errReleased
}

func (i *tableIterator) advance() bool {
	if i.valid = i.it.Next(); !i.valid {
		i.err = i.it.Err()
	}
	return i.valid
}

func (i *tableIterator) reset() {
	if i.it != nil {
		i.it.Release()
		i.it = nil
	}
	i.valid = false
	i.err = nil
}

var errReleased = errors.New("merk: iterator released")
