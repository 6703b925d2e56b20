package merk

import (
	"errors"
	"fmt"

	"github.com/bsm/merk/proofs"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var (
	// ErrChunkOrder is returned when a leaf chunk is processed before the trunk.
	ErrChunkOrder = errors.New("merk: trunk chunk must be processed first")
	// ErrUnexpectedChunk is returned for unknown or duplicate chunk indices.
	ErrUnexpectedChunk = errors.New("merk: unexpected chunk")
)

var errIncompleteTrunk = errors.New("merk: trunk does not cover all leaf chunks")

// Restorer rebuilds a tree from chunks. The trunk (chunk 0) must be
// processed first, leaf chunks may follow in any order. Every chunk is
// verified against the expected root hash before it is written.
type Restorer struct {
	db       *leveldb.DB
	o        *Options
	expected proofs.Hash

	trunk     *proofs.Tree
	trunkDone bool
	leaves    []*proofs.Tree         // leaf chunk i is proven by leaves[i-1]
	restored  map[*proofs.Tree]*link // links of restored leaf chunks
}

// NewRestorer creates a restorer, writing to a new store at path.
func NewRestorer(path string, expected proofs.Hash, o *Options) (*Restorer, error) {
	o = o.norm()

	db, err := leveldb.OpenFile(path, o.LevelDB)
	if err != nil {
		return nil, fmt.Errorf("merk: open %s: %w", path, err)
	}

	it := db.NewIterator(nil, nil)
	pristine := !it.First()
	it.Release()
	if !pristine {
		_ = db.Close()
		return nil, errNotPristine
	}

	return &Restorer{
		db:       db,
		o:        o,
		expected: expected,
		restored: make(map[*proofs.Tree]*link),
	}, nil
}

// Len returns the total number of chunks. It returns 0 until the trunk
// has been processed.
func (r *Restorer) Len() int {
	if !r.trunkDone {
		return 0
	}
	return len(r.leaves) + 1
}

// Remaining returns the indices of the chunks which still need to be
// processed.
func (r *Restorer) Remaining() []int {
	if !r.trunkDone {
		return []int{0}
	}

	var indices []int
	for i, leaf := range r.leaves {
		if _, ok := r.restored[leaf]; !ok {
			indices = append(indices, i+1)
		}
	}
	return indices
}

// ProcessChunk verifies and stores a chunk.
func (r *Restorer) ProcessChunk(index int, chunk []byte) error {
	if r.db == nil {
		return errClosed
	}

	ops, err := proofs.Decode(chunk)
	if err != nil {
		return fmt.Errorf("merk: chunk %d: %w", index, err)
	}

	if index == 0 {
		if r.trunkDone {
			return fmt.Errorf("%w: %d", ErrUnexpectedChunk, index)
		}
		if err := r.processTrunk(ops); err != nil {
			return fmt.Errorf("merk: chunk %d: %w", index, err)
		}
		return nil
	}

	if !r.trunkDone {
		return ErrChunkOrder
	}
	if index < 0 || index > len(r.leaves) {
		return fmt.Errorf("%w: %d", ErrUnexpectedChunk, index)
	}

	leaf := r.leaves[index-1]
	if _, ok := r.restored[leaf]; ok {
		return fmt.Errorf("%w: %d", ErrUnexpectedChunk, index)
	}
	if err := r.processLeaf(leaf, ops); err != nil {
		return fmt.Errorf("merk: chunk %d: %w", index, err)
	}
	return nil
}

func (r *Restorer) processTrunk(ops []proofs.Op) error {
	tree, height, err := proofs.VerifyTrunk(ops)
	if err != nil {
		return err
	}
	if got := tree.Hash(); got != r.expected {
		return fmt.Errorf("%w: got %s, expected %s", proofs.ErrHashMismatch, got, r.expected)
	}

	var leaves []*proofs.Tree
	if trunkHeight := height / 2; tree != nil && trunkHeight >= proofs.MinTrunkHeight {
		leaves = tree.Layer(trunkHeight)

		inner := 0
		_ = tree.Visit(func(t *proofs.Tree) error {
			if t.Node.Type == proofs.KVNode {
				inner++
			}
			return nil
		})
		if inner+1 != len(leaves) {
			return errIncompleteTrunk
		}
	}

	r.trunk = tree
	r.leaves = leaves
	r.trunkDone = true
	return nil
}

func (r *Restorer) processLeaf(leaf *proofs.Tree, ops []proofs.Op) error {
	tree, err := proofs.VerifyLeaf(ops, leaf.Hash())
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	l, err := r.writeTree(batch, tree)
	if err != nil {
		return err
	}
	if err := r.db.Write(batch, &opt.WriteOptions{Sync: r.o.Sync}); err != nil {
		return err
	}

	r.restored[leaf] = l
	return nil
}

// Finalize writes the trunk and returns the restored tree. The restorer
// must not be used afterwards.
func (r *Restorer) Finalize() (*Merk, error) {
	if r.db == nil {
		return nil, errClosed
	}
	if n := len(r.Remaining()); n != 0 {
		return nil, fmt.Errorf("merk: restore incomplete, %d chunks remaining", n)
	}

	batch := new(leveldb.Batch)
	if r.trunk != nil {
		root, err := r.writeTree(batch, r.trunk)
		if err != nil {
			return nil, err
		}
		if root.hash != r.expected {
			return nil, fmt.Errorf("%w: got %s, expected %s", proofs.ErrHashMismatch, root.hash, r.expected)
		}
		batch.Put(rootMetaKey, root.key)
	}

	if err := r.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return nil, fmt.Errorf("merk: finalize: %w", err)
	}

	db := r.db
	r.db = nil
	return newMerk(db, r.o)
}

// Close aborts the restore and closes the store.
func (r *Restorer) Close() error {
	if r.db == nil {
		return errClosed
	}

	err := r.db.Close()
	r.db = nil
	return err
}

// writeTree writes all KV nodes of t and returns the link to its root.
// Other nodes must belong to restored leaf chunks.
func (r *Restorer) writeTree(batch *leveldb.Batch, t *proofs.Tree) (*link, error) {
	if t.Node.Type != proofs.KVNode {
		l, ok := r.restored[t]
		if !ok {
			return nil, errors.New("merk: missing leaf chunk")
		}
		return l, nil
	}

	n := newNode(clone(t.Node.Key), clone(t.Node.Value))
	for _, left := range []bool{true, false} {
		child := t.Child(left)
		if child == nil {
			continue
		}

		l, err := r.writeTree(batch, child)
		if err != nil {
			return nil, err
		}
		n.setLink(left, l)
	}

	batch.Put(nodeKey(n.key), n.encode(nil))
	return &link{key: n.key, hash: n.Hash(), height: uint8(n.Height())}, nil
}
