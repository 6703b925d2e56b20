package merk

import (
	"math"

	"github.com/bsm/merk/proofs"
)

// trunkBuilder creates the trunk chunk, which proves the tree down to
// half of its (leftmost) height.
type trunkBuilder struct {
	src source
	ops []proofs.Op
}

// createTrunk builds the trunk proof for the tree stored in src. hasMore
// is false if the trunk contains the whole tree.
func createTrunk(src source) (ops []proofs.Op, hasMore bool, err error) {
	root, err := loadRoot(src)
	if err != nil || root == nil {
		return nil, false, err
	}

	b := &trunkBuilder{src: src}
	trunkHeight, err := b.heightProof(root, 1)
	if err != nil {
		return nil, false, err
	}

	if trunkHeight < proofs.MinTrunkHeight {
		b.ops = b.ops[:0]
		if err := b.trunk(root, math.MaxInt32, true); err != nil {
			return nil, false, err
		}
		return b.ops, false, nil
	}

	if err := b.trunk(root, trunkHeight, true); err != nil {
		return nil, false, err
	}
	return b.ops, true, nil
}

// heightProof walks the leftmost path and returns the trunk height. The
// part of the path below the trunk is emitted as KVHash nodes, with the
// right siblings as Hash nodes.
func (b *trunkBuilder) heightProof(t *node, depth int) (int, error) {
	trunkHeight := depth / 2
	if t.left != nil {
		left, err := b.fetch(t.left)
		if err != nil {
			return 0, err
		}
		if trunkHeight, err = b.heightProof(left, depth+1); err != nil {
			return 0, err
		}
	}

	if depth > trunkHeight {
		b.push(proofs.NewKVHashNode(t.kvHash))
		if t.left != nil {
			b.ops = append(b.ops, proofs.Parent)
		}
		if t.right != nil {
			b.push(proofs.NewHashNode(t.right.hash))
			b.ops = append(b.ops, proofs.Child)
		}
	}
	return trunkHeight, nil
}

// trunk emits the nodes of the top remaining levels as KV nodes.
func (b *trunkBuilder) trunk(t *node, remaining int, leftmost bool) error {
	if t.left != nil {
		if err := b.descend(t.left, remaining-1, leftmost); err != nil {
			return err
		}
	}

	b.push(proofs.NewKVNode(t.key, t.value))
	if t.left != nil {
		b.ops = append(b.ops, proofs.Parent)
	}

	if t.right != nil {
		if err := b.descend(t.right, remaining-1, false); err != nil {
			return err
		}
		b.ops = append(b.ops, proofs.Child)
	}
	return nil
}

func (b *trunkBuilder) descend(l *link, remaining int, leftmost bool) error {
	if remaining == 0 {
		// the leftmost subtree is on the stack already
		if !leftmost {
			b.push(proofs.NewHashNode(l.hash))
		}
		return nil
	}

	child, err := b.fetch(l)
	if err != nil {
		return err
	}
	return b.trunk(child, remaining, leftmost)
}

func (b *trunkBuilder) fetch(l *link) (*node, error) {
	return fetchNode(b.src, l.key)
}

func (b *trunkBuilder) push(n proofs.Node) {
	b.ops = append(b.ops, proofs.Push(n))
}

// trunkBoundaries returns the keys of all KV nodes of a trunk.
func trunkBoundaries(ops []proofs.Op) [][]byte {
	var keys [][]byte
	for _, op := range ops {
		if op.Type == proofs.PushOp && op.Node.Type == proofs.KVNode {
			keys = append(keys, op.Node.Key)
		}
	}
	return keys
}
