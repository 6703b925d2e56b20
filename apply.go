package merk

import (
	"bytes"
	"fmt"
	"sort"
)

// BatchOp is the type of a batch operation.
type BatchOp uint8

const (
	// OpPut inserts or updates a key.
	OpPut BatchOp = iota
	// OpDelete removes an existing key.
	OpDelete
)

func (o BatchOp) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("BatchOp(%d)", uint8(o))
}

// BatchEntry is a single operation of a batch.
type BatchEntry struct {
	Key   []byte
	Op    BatchOp
	Value []byte // only used by OpPut
}

// Put creates a put entry.
func Put(key, value []byte) BatchEntry { return BatchEntry{Key: key, Op: OpPut, Value: value} }

// Delete creates a delete entry.
func Delete(key []byte) BatchEntry { return BatchEntry{Key: key, Op: OpDelete} }

func validateBatch(batch []BatchEntry) error {
	for i, e := range batch {
		if len(e.Key) == 0 {
			return errEmptyKey
		}
		if e.Op != OpPut && e.Op != OpDelete {
			return fmt.Errorf("merk: batch entry %d: invalid op %s", i, e.Op)
		}
		if i > 0 && bytes.Compare(batch[i-1].Key, e.Key) >= 0 {
			return fmt.Errorf("merk: batch keys must be sorted and unique, %q must be > %q", e.Key, batch[i-1].Key)
		}
	}
	return nil
}

// --------------------------------------------------------------------

// applier applies sorted batches to the tree, loading nodes from src
// as needed. Keys of removed nodes are collected in deleted.
type applier struct {
	src     source
	deleted [][]byte
}

// apply applies batch to the subtree rooted at t and returns the new
// subtree root.
func (a *applier) apply(t *node, batch []BatchEntry) (*node, error) {
	if len(batch) == 0 {
		return t, nil
	}
	if t == nil {
		return a.build(batch)
	}

	pos := sort.Search(len(batch), func(i int) bool {
		return bytes.Compare(batch[i].Key, t.key) >= 0
	})
	left, right := batch[:pos], batch[pos:]
	if pos < len(batch) && bytes.Equal(batch[pos].Key, t.key) {
		right = batch[pos+1:]

		if batch[pos].Op == OpDelete {
			rest, err := a.remove(t)
			if err != nil {
				return nil, err
			}
			if rest, err = a.apply(rest, left); err != nil {
				return nil, err
			}
			return a.apply(rest, right)
		}
		t.setValue(clone(batch[pos].Value))
	}

	for _, side := range []struct {
		left  bool
		batch []BatchEntry
	}{{true, left}, {false, right}} {
		if len(side.batch) == 0 {
			continue
		}

		child, err := a.child(t, side.left)
		if err != nil {
			return nil, err
		}
		if child, err = a.apply(child, side.batch); err != nil {
			return nil, err
		}
		t.attach(side.left, child)
	}
	return a.balance(t)
}

// build creates a new, balanced subtree from batch by recursive midpoint
// split.
func (a *applier) build(batch []BatchEntry) (*node, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	mid := len(batch) / 2
	e := batch[mid]
	if e.Op == OpDelete {
		return nil, fmt.Errorf("merk: delete %q: %w", e.Key, ErrNotFound)
	}

	left, err := a.build(batch[:mid])
	if err != nil {
		return nil, err
	}
	right, err := a.build(batch[mid+1:])
	if err != nil {
		return nil, err
	}

	t := newNode(clone(e.Key), clone(e.Value))
	t.attach(true, left)
	t.attach(false, right)
	return t, nil
}

// child returns the child of t on the given side, fetching it from the
// store if not yet loaded.
func (a *applier) child(t *node, left bool) (*node, error) {
	l := t.childLink(left)
	if l == nil {
		return nil, nil
	}
	if l.tree == nil {
		child, err := fetchNode(a.src, l.key)
		if err != nil {
			return nil, fmt.Errorf("merk: fetch %q: %w", l.key, err)
		}
		l.tree = child
	}
	return l.tree, nil
}

// remove deletes t and returns the root of the remaining subtree. The
// taller child donates its edge node as the replacement.
func (a *applier) remove(t *node) (*node, error) {
	a.deleted = append(a.deleted, t.key)

	if t.left == nil && t.right == nil {
		return nil, nil
	}

	left, err := a.child(t, true)
	if err != nil {
		return nil, err
	}
	right, err := a.child(t, false)
	if err != nil {
		return nil, err
	}

	var edge *node
	if t.childHeight(true) > t.childHeight(false) {
		var rest *node
		if edge, rest, err = a.removeEdge(left, false); err != nil {
			return nil, err
		}
		edge.attach(true, rest)
		edge.attach(false, right)
	} else {
		var rest *node
		if edge, rest, err = a.removeEdge(right, true); err != nil {
			return nil, err
		}
		edge.attach(true, left)
		edge.attach(false, rest)
	}
	return a.balance(edge)
}

// removeEdge detaches the outermost node on the given side of the subtree
// rooted at t. It returns the detached node and the new subtree root.
func (a *applier) removeEdge(t *node, left bool) (edge, rest *node, err error) {
	child, err := a.child(t, left)
	if err != nil {
		return nil, nil, err
	}
	if child == nil {
		if rest, err = a.child(t, !left); err != nil {
			return nil, nil, err
		}
		return t, rest, nil
	}

	if edge, rest, err = a.removeEdge(child, left); err != nil {
		return nil, nil, err
	}
	t.attach(left, rest)
	if t, err = a.balance(t); err != nil {
		return nil, nil, err
	}
	return edge, t, nil
}

// balance restores the AVL invariant at t with single or double
// rotations.
func (a *applier) balance(t *node) (*node, error) {
	bf := t.balanceFactor()
	if bf >= -1 && bf <= 1 {
		return t, nil
	}

	left := bf < 0
	child, err := a.child(t, left)
	if err != nil {
		return nil, err
	}

	if cbf := child.balanceFactor(); (left && cbf > 0) || (!left && cbf < 0) {
		if child, err = a.rotate(child, !left); err != nil {
			return nil, err
		}
		t.attach(left, child)
	}
	return a.rotate(t, left)
}

// rotate lifts the child on the given side of t into its place.
func (a *applier) rotate(t *node, left bool) (*node, error) {
	child, err := a.child(t, left)
	if err != nil {
		return nil, err
	}

	t.setLink(left, child.childLink(!left))
	if t, err = a.balance(t); err != nil {
		return nil, err
	}

	child.attach(!left, t)
	return a.balance(child)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append(make([]byte, 0, len(b)), b...)
}
