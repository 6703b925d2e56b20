package proofs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	opcodePushHash   = 0x01
	opcodePushKVHash = 0x02
	opcodePushKV     = 0x03
	opcodeParent     = 0x10
	opcodeChild      = 0x11
)

var errTruncated = errors.New("proofs: truncated op")

// Encode encodes ops into a self-delimiting byte sequence.
func Encode(ops []Op) []byte {
	sz := 0
	for _, op := range ops {
		sz += encodedLen(op)
	}

	dst := make([]byte, 0, sz)
	for _, op := range ops {
		dst = AppendOp(dst, op)
	}
	return dst
}

// AppendOp appends the encoding of a single op to dst.
func AppendOp(dst []byte, op Op) []byte {
	switch op.Type {
	case ParentOp:
		return append(dst, opcodeParent)
	case ChildOp:
		return append(dst, opcodeChild)
	case PushOp:
	default:
		panic(fmt.Sprintf("proofs: cannot encode %s", op))
	}

	switch n := op.Node; n.Type {
	case HashNode:
		dst = append(dst, opcodePushHash)
		return append(dst, n.Hash[:]...)
	case KVHashNode:
		dst = append(dst, opcodePushKVHash)
		return append(dst, n.Hash[:]...)
	case KVNode:
		var tmp [binary.MaxVarintLen64]byte
		dst = append(dst, opcodePushKV)
		m := binary.PutUvarint(tmp[:], uint64(len(n.Key)))
		dst = append(dst, tmp[:m]...)
		dst = append(dst, n.Key...)
		m = binary.PutUvarint(tmp[:], uint64(len(n.Value)))
		dst = append(dst, tmp[:m]...)
		return append(dst, n.Value...)
	}
	panic(fmt.Sprintf("proofs: cannot encode %s", op))
}

func encodedLen(op Op) int {
	if op.Type != PushOp {
		return 1
	}
	if op.Node.Type != KVNode {
		return 1 + HashSize
	}
	return 1 + 2*binary.MaxVarintLen64 + len(op.Node.Key) + len(op.Node.Value)
}

// Decode decodes all ops in b. Keys and values of the returned ops
// reference b and must be copied if b is reused.
func Decode(b []byte) ([]Op, error) {
	var ops []Op

	dec := NewDecoder(b)
	for dec.Next() {
		ops = append(ops, dec.Op())
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// --------------------------------------------------------------------

// Decoder decodes ops one at a time.
type Decoder struct {
	buf []byte
	pos int
	op  Op
	err error
}

// NewDecoder returns a decoder reading from b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Op returns the current op.
func (d *Decoder) Op() Op { return d.op }

// Err returns the decoding error, if any.
func (d *Decoder) Err() error { return d.err }

// More returns true if more data can be read.
func (d *Decoder) More() bool { return d.err == nil && d.pos < len(d.buf) }

// Next decodes the next op and returns true if successful.
func (d *Decoder) Next() bool {
	if !d.More() {
		return false
	}

	code := d.buf[d.pos]
	d.pos++

	switch code {
	case opcodeParent:
		d.op = Parent
	case opcodeChild:
		d.op = Child
	case opcodePushHash, opcodePushKVHash:
		if len(d.buf)-d.pos < HashSize {
			return d.fail(errTruncated)
		}

		var h Hash
		copy(h[:], d.buf[d.pos:])
		d.pos += HashSize

		if code == opcodePushHash {
			d.op = Push(NewHashNode(h))
		} else {
			d.op = Push(NewKVHashNode(h))
		}
	case opcodePushKV:
		key, ok := d.readBytes()
		if !ok {
			return d.fail(errTruncated)
		}
		val, ok := d.readBytes()
		if !ok {
			return d.fail(errTruncated)
		}
		d.op = Push(NewKVNode(key, val))
	default:
		return d.fail(fmt.Errorf("proofs: bad opcode 0x%02x at offset %d", code, d.pos-1))
	}
	return true
}

func (d *Decoder) readBytes() ([]byte, bool) {
	n, m := binary.Uvarint(d.buf[d.pos:])
	if m <= 0 {
		return nil, false
	}
	d.pos += m

	if n > uint64(len(d.buf)-d.pos) {
		return nil, false
	}
	p := d.buf[d.pos : d.pos+int(n) : d.pos+int(n)]
	d.pos += int(n)
	return p, true
}

func (d *Decoder) fail(err error) bool {
	d.op = Op{}
	d.err = err
	return false
}
