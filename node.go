package merk

import (
	"encoding/binary"
	"errors"

	"github.com/bsm/merk/proofs"
	"github.com/syndtr/goleveldb/leveldb"
)

var errBadRecord = errors.New("merk: bad node record")

// node is a node of the AVL tree, with links to its children.
type node struct {
	key, value []byte
	kvHash     proofs.Hash

	left, right *link
	dirty       bool // needs to be written on commit
}

// link references a child subtree. The subtree is loaded from the store
// on demand; tree is nil until then.
type link struct {
	key    []byte
	hash   proofs.Hash
	height uint8
	tree   *node
}

func newNode(key, value []byte) *node {
	return &node{
		key:    key,
		value:  value,
		kvHash: proofs.KVHash(key, value),
		dirty:  true,
	}
}

// Key returns the node key.
func (t *node) Key() []byte { return t.key }

// Value returns the node value.
func (t *node) Value() []byte { return t.value }

// Hash returns the hash of the subtree rooted at t.
func (t *node) Hash() proofs.Hash {
	return proofs.NodeHash(t.kvHash, t.childHash(true), t.childHash(false))
}

// Height returns the number of levels of the subtree rooted at t.
func (t *node) Height() int {
	l, r := t.childHeight(true), t.childHeight(false)
	if l > r {
		return 1 + int(l)
	}
	return 1 + int(r)
}

func (t *node) childLink(left bool) *link {
	if left {
		return t.left
	}
	return t.right
}

func (t *node) setLink(left bool, l *link) {
	if left {
		t.left = l
	} else {
		t.right = l
	}
	t.dirty = true
}

// attach links child on the given side of t. A nil child removes the link.
func (t *node) attach(left bool, child *node) {
	if child == nil {
		t.setLink(left, nil)
		return
	}
	t.setLink(left, &link{
		key:    child.key,
		hash:   child.Hash(),
		height: uint8(child.Height()),
		tree:   child,
	})
}

func (t *node) setValue(value []byte) {
	t.value = value
	t.kvHash = proofs.KVHash(t.key, value)
	t.dirty = true
}

func (t *node) childHash(left bool) proofs.Hash {
	if l := t.childLink(left); l != nil {
		return l.hash
	}
	return proofs.NullHash
}

func (t *node) childHeight(left bool) uint8 {
	if l := t.childLink(left); l != nil {
		return l.height
	}
	return 0
}

func (t *node) balanceFactor() int {
	return int(t.childHeight(false)) - int(t.childHeight(true))
}

// commit writes all dirty nodes of the loaded part of the tree.
func (t *node) commit(batch *leveldb.Batch) {
	for _, l := range []*link{t.left, t.right} {
		if l != nil && l.tree != nil {
			l.tree.commit(batch)
		}
	}
	if t.dirty {
		batch.Put(nodeKey(t.key), t.encode(nil))
		t.dirty = false
	}
}

// detach returns a copy of t with its own links, so the copy can be
// modified without affecting t. Loaded subtrees are not copied, callers
// must only detach pruned nodes.
func (t *node) detach() *node {
	if t == nil {
		return nil
	}

	c := *t
	if t.left != nil {
		l := *t.left
		c.left = &l
	}
	if t.right != nil {
		l := *t.right
		c.right = &l
	}
	return &c
}

// prune drops the loaded children of t.
func (t *node) prune() {
	if t.left != nil {
		t.left.tree = nil
	}
	if t.right != nil {
		t.right.tree = nil
	}
}

// --------------------------------------------------------------------

func (t *node) encode(dst []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(tmp[:], uint64(len(t.value)))
	dst = append(dst, tmp[:n]...)
	dst = append(dst, t.value...)

	for _, l := range []*link{t.left, t.right} {
		if l == nil {
			dst = append(dst, 0)
			continue
		}

		dst = append(dst, 1)
		n = binary.PutUvarint(tmp[:], uint64(len(l.key)))
		dst = append(dst, tmp[:n]...)
		dst = append(dst, l.key...)
		dst = append(dst, l.hash[:]...)
		dst = append(dst, l.height)
	}
	return dst
}

// decodeNode decodes a node record. Key and record are copied.
func decodeNode(key, rec []byte) (*node, error) {
	vln, n := binary.Uvarint(rec)
	if n <= 0 || vln > uint64(len(rec)-n) {
		return nil, errBadRecord
	}
	rec = rec[n:]

	value := append(make([]byte, 0, vln), rec[:vln]...)
	rec = rec[vln:]

	t := &node{
		key:    append([]byte(nil), key...),
		value:  value,
		kvHash: proofs.KVHash(key, value),
	}

	for _, left := range []bool{true, false} {
		if len(rec) == 0 {
			return nil, errBadRecord
		}

		present := rec[0]
		rec = rec[1:]
		if present == 0 {
			continue
		}

		kln, n := binary.Uvarint(rec)
		if n <= 0 || kln > uint64(len(rec)-n) || uint64(len(rec)-n)-kln < proofs.HashSize+1 {
			return nil, errBadRecord
		}
		rec = rec[n:]

		l := &link{key: append([]byte(nil), rec[:kln]...)}
		rec = rec[kln:]
		copy(l.hash[:], rec)
		l.height = rec[proofs.HashSize]
		rec = rec[proofs.HashSize+1:]

		t.setLink(left, l)
	}

	if len(rec) != 0 {
		return nil, errBadRecord
	}
	t.dirty = false
	return t, nil
}
