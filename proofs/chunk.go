package proofs

import (
	"errors"
	"fmt"
)

// MinTrunkHeight is the smallest trunk height worth splitting off into
// separate leaf chunks. Trees with a lower trunk height are proven by a
// single trunk chunk.
const MinTrunkHeight = 5

// ErrHashMismatch is returned when a proof does not match the expected hash.
var ErrHashMismatch = errors.New("proofs: hash mismatch")

var errNotKV = errors.New("proofs: expected KV nodes only")

// VerifyTrunk executes and validates a trunk chunk. It returns the trunk
// tree and the height proven by the leftmost path. Callers must compare
// the tree's hash against the expected root hash. The leaf chunks belonging
// to the trunk correspond one to one to the nodes of tree.Layer(height/2).
//
// An empty trunk (empty tree) yields a nil tree and height 0.
func VerifyTrunk(ops []Op) (*Tree, int, error) {
	kvOnly := true
	tree, err := Execute(ops, func(n Node) error {
		kvOnly = kvOnly && n.Type == KVNode
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if tree == nil {
		return nil, 0, nil
	}

	height, err := verifyHeightProof(tree)
	if err != nil {
		return nil, 0, err
	}

	if trunkHeight := height / 2; trunkHeight < MinTrunkHeight {
		if !kvOnly {
			return nil, 0, errors.New("proofs: trunk below minimum height must contain the full tree")
		}
	} else if err := verifyCompleteness(tree, trunkHeight, true); err != nil {
		return nil, 0, err
	}
	return tree, height, nil
}

// VerifyLeaf executes a leaf chunk and checks it against the expected
// subtree hash.
func VerifyLeaf(ops []Op, expected Hash) (*Tree, error) {
	tree, err := Execute(ops, func(n Node) error {
		if n.Type != KVNode {
			return errNotKV
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, errors.New("proofs: empty leaf chunk")
	}
	if got := tree.Hash(); got != expected {
		return nil, fmt.Errorf("%w: got %s, expected %s", ErrHashMismatch, got, expected)
	}
	return tree, nil
}

// verifyHeightProof checks the leftmost path and returns its length.
func verifyHeightProof(t *Tree) (int, error) {
	height := 1
	for t.Left != nil {
		t = t.Left
		if t.Node.Type == HashNode {
			return 0, errors.New("proofs: height proof must only contain KV and KVHash nodes")
		}
		height++
	}
	return height, nil
}

func verifyCompleteness(t *Tree, remaining int, leftmost bool) error {
	if remaining > 0 {
		if t.Node.Type != KVNode {
			return errors.New("proofs: trunk inner nodes must contain keys and values")
		}
		if t.Left != nil {
			if err := verifyCompleteness(t.Left, remaining-1, leftmost); err != nil {
				return err
			}
		}
		if t.Right != nil {
			if err := verifyCompleteness(t.Right, remaining-1, false); err != nil {
				return err
			}
		}
		return nil
	}

	if leftmost {
		if t.Node.Type != KVHashNode {
			return errors.New("proofs: leftmost trunk leaf must contain a KVHash node")
		}
	} else if t.Node.Type != HashNode {
		return errors.New("proofs: trunk leaves must contain Hash nodes")
	}
	return nil
}
