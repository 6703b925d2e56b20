package merk

import (
	"bytes"

	"github.com/bsm/merk/proofs"
)

// buildLeafChunk reads nodes from the cursor's position up to (but
// excluding) end and emits them as a KV-only proof. A nil end reads to
// the last node. The cursor is left on the node following end.
func buildLeafChunk(c *Cursor, end []byte) ([]proofs.Op, error) {
	var ops []proofs.Op
	var stack [][]byte // keys of pending right children

	for ; c.Valid(); c.Next() {
		key := c.Key()
		if end != nil && bytes.Equal(key, end) {
			break
		}

		t, err := decodeNode(key, c.Value())
		if err != nil {
			return nil, err
		}

		ops = append(ops, proofs.Push(proofs.NewKVNode(t.key, t.value)))
		if t.left != nil {
			ops = append(ops, proofs.Parent)
		}

		if t.right != nil {
			stack = append(stack, t.right.key)
			continue
		}
		for len(stack) != 0 && bytes.Compare(t.key, stack[len(stack)-1]) >= 0 {
			stack = stack[:len(stack)-1]
			ops = append(ops, proofs.Child)
		}
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	if c.Valid() {
		c.Next()
	}
	return ops, nil
}
