package proofs

import "fmt"

// NodeType is the kind of node pushed by a proof.
type NodeType uint8

// Supported node types.
const (
	// HashNode carries the hash of a whole subtree.
	HashNode NodeType = iota + 1
	// KVHashNode carries the KV hash of a node, but not its key or value.
	KVHashNode
	// KVNode carries a full key/value pair.
	KVNode
)

// Node is a tree node as seen by a proof.
type Node struct {
	Type  NodeType
	Hash  Hash // for HashNode and KVHashNode
	Key   []byte
	Value []byte
}

// NewHashNode returns a node standing in for a pruned subtree.
func NewHashNode(h Hash) Node { return Node{Type: HashNode, Hash: h} }

// NewKVHashNode returns a node revealing only the KV hash.
func NewKVHashNode(h Hash) Node { return Node{Type: KVHashNode, Hash: h} }

// NewKVNode returns a node revealing key and value.
func NewKVNode(key, value []byte) Node { return Node{Type: KVNode, Key: key, Value: value} }

func (n Node) String() string {
	switch n.Type {
	case HashNode:
		return fmt.Sprintf("Hash(%s)", n.Hash)
	case KVHashNode:
		return fmt.Sprintf("KVHash(%s)", n.Hash)
	case KVNode:
		return fmt.Sprintf("KV(%x, %x)", n.Key, n.Value)
	}
	return fmt.Sprintf("Node(%d)", n.Type)
}

// OpType is the instruction type of an Op.
type OpType uint8

// Supported instructions.
const (
	// PushOp pushes a node onto the stack.
	PushOp OpType = iota + 1
	// ParentOp pops a parent, then a child, and attaches the child on the
	// left of the parent.
	ParentOp
	// ChildOp pops a child, then a parent, and attaches the child on the
	// right of the parent.
	ChildOp
)

// Op is a single proof instruction.
type Op struct {
	Type OpType
	Node Node // only set for PushOp
}

// Parent and Child are the stateless ops.
var (
	Parent = Op{Type: ParentOp}
	Child  = Op{Type: ChildOp}
)

// Push returns a push op for node n.
func Push(n Node) Op { return Op{Type: PushOp, Node: n} }

func (o Op) String() string {
	switch o.Type {
	case PushOp:
		return "Push(" + o.Node.String() + ")"
	case ParentOp:
		return "Parent"
	case ChildOp:
		return "Child"
	}
	return fmt.Sprintf("Op(%d)", o.Type)
}
