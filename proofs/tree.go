package proofs

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	errStackUnderflow = errors.New("proofs: stack underflow")
	errChildAttached  = errors.New("proofs: child already attached")
	errNotOneTree     = errors.New("proofs: expected exactly one tree on the stack")
)

// Tree is a (partial) tree reconstructed by executing a proof.
type Tree struct {
	Node        Node
	Left, Right *Tree

	height int
	hash   *Hash
}

// Hash returns the hash of the (sub)tree. The hash of a nil tree is
// NullHash.
func (t *Tree) Hash() Hash {
	if t == nil {
		return NullHash
	}
	if t.hash != nil {
		return *t.hash
	}

	var h Hash
	switch t.Node.Type {
	case HashNode:
		h = t.Node.Hash
	case KVHashNode:
		h = NodeHash(t.Node.Hash, t.Left.Hash(), t.Right.Hash())
	default:
		h = NodeHash(KVHash(t.Node.Key, t.Node.Value), t.Left.Hash(), t.Right.Hash())
	}
	t.hash = &h
	return h
}

// Height returns the number of levels in the tree, 0 for a nil tree.
func (t *Tree) Height() int {
	if t == nil {
		return 0
	}
	return t.height
}

// Child returns the child on the given side.
func (t *Tree) Child(left bool) *Tree {
	if left {
		return t.Left
	}
	return t.Right
}

// Layer returns all nodes at the given depth (the root is at depth 0),
// ordered from left to right.
func (t *Tree) Layer(depth int) []*Tree {
	if t == nil {
		return nil
	}
	if depth == 0 {
		return []*Tree{t}
	}
	return append(t.Left.Layer(depth-1), t.Right.Layer(depth-1)...)
}

// Visit calls fn for every node, in key order.
func (t *Tree) Visit(fn func(*Tree) error) error {
	if t == nil {
		return nil
	}
	if err := t.Left.Visit(fn); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return t.Right.Visit(fn)
}

func (t *Tree) attach(left bool, child *Tree) error {
	slot := &t.Right
	if left {
		slot = &t.Left
	}
	if *slot != nil {
		return errChildAttached
	}

	*slot = child
	if h := child.height + 1; h > t.height {
		t.height = h
	}
	t.hash = nil
	return nil
}

// --------------------------------------------------------------------

// Execute replays ops and returns the resulting tree. The optional visit
// func is called with every pushed node. Keys of KV nodes must be
// strictly ascending. An empty proof results in a nil tree.
func Execute(ops []Op, visit func(Node) error) (*Tree, error) {
	var stack []*Tree
	var lastKey []byte

	pop := func() (*Tree, error) {
		if len(stack) == 0 {
			return nil, errStackUnderflow
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t, nil
	}

	for i, op := range ops {
		switch op.Type {
		case PushOp:
			if op.Node.Type == KVNode {
				if lastKey != nil && bytes.Compare(op.Node.Key, lastKey) <= 0 {
					return nil, fmt.Errorf("proofs: op %d: key %x out of order", i, op.Node.Key)
				}
				lastKey = op.Node.Key
			}
			if visit != nil {
				if err := visit(op.Node); err != nil {
					return nil, err
				}
			}
			stack = append(stack, &Tree{Node: op.Node, height: 1})

		case ParentOp, ChildOp:
			first, err := pop()
			if err != nil {
				return nil, err
			}
			second, err := pop()
			if err != nil {
				return nil, err
			}

			parent, child, left := first, second, true
			if op.Type == ChildOp {
				parent, child, left = second, first, false
			}
			if err := parent.attach(left, child); err != nil {
				return nil, fmt.Errorf("%w at op %d", err, i)
			}
			stack = append(stack, parent)

		default:
			return nil, fmt.Errorf("proofs: op %d: unknown op type %d", i, op.Type)
		}
	}

	switch len(stack) {
	case 0:
		if len(ops) == 0 {
			return nil, nil
		}
	case 1:
		return stack[0], nil
	}
	return nil, errNotOneTree
}
