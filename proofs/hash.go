package proofs

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// HashSize is the byte length of every tree hash.
const HashSize = 32

// Hash is a keyed BLAKE3 digest.
type Hash [HashSize]byte

// NullHash is the hash of an absent subtree.
var NullHash Hash

// String returns the hex representation.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsNull returns true for NullHash.
func (h Hash) IsNull() bool { return h == NullHash }

// ParseHash parses a hex encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("proofs: bad hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("proofs: bad hash length %d, expected %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// Domain keys are ASCII names, zero padded to 32 bytes. Changing them
// changes every hash.
var (
	kvHashers   = newHasherPool("merk.kv")
	nodeHashers = newHasherPool("merk.node")
)

// KVHash hashes a key/value pair.
func KVHash(key, value []byte) Hash {
	h := kvHashers.Get()
	defer kvHashers.Put(h)

	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	_, _ = h.Write(tmp[:n])
	_, _ = h.Write(key)
	n = binary.PutUvarint(tmp[:], uint64(len(value)))
	_, _ = h.Write(tmp[:n])
	_, _ = h.Write(value)
	return sum(h)
}

// NodeHash combines the KV hash of a node with the hashes of its children.
// Absent children are represented by NullHash.
func NodeHash(kv, left, right Hash) Hash {
	h := nodeHashers.Get()
	defer nodeHashers.Put(h)

	var buf [3 * HashSize]byte
	copy(buf[0:], kv[:])
	copy(buf[HashSize:], left[:])
	copy(buf[2*HashSize:], right[:])
	_, _ = h.Write(buf[:])
	return sum(h)
}

func sum(h *blake3.Hasher) Hash {
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// --------------------------------------------------------------------

type hasherPool struct {
	key  [32]byte
	pool sync.Pool
}

func newHasherPool(domain string) *hasherPool {
	p := new(hasherPool)
	copy(p.key[:], domain)
	return p
}

func (p *hasherPool) Get() *blake3.Hasher {
	if v := p.pool.Get(); v != nil {
		h := v.(*blake3.Hasher)
		h.Reset()
		return h
	}

	h, err := blake3.NewKeyed(p.key[:])
	if err != nil {
		panic("proofs: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return h
}

func (p *hasherPool) Put(h *blake3.Hasher) { p.pool.Put(h) }
