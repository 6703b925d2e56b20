package merk

import (
	"errors"
	"fmt"

	"github.com/bsm/merk/proofs"
)

// ErrIndexOutOfBounds is returned when a chunk index is not within [0, Len()).
var ErrIndexOutOfBounds = errors.New("merk: chunk index out of bounds")

type stage uint8

const (
	atTrunk stage = iota
	atLeaf
	exhausted
)

// position is the chunk which will be produced next.
type position struct {
	stage stage
	leaf  int // chunk index, only used atLeaf
}

func (p position) index(n int) int {
	switch p.stage {
	case atTrunk:
		return 0
	case atLeaf:
		return p.leaf
	}
	return n
}

// ChunkProducer creates the chunks used to replicate a whole tree. The
// first chunk (the trunk) proves the top half of the tree, all following
// (leaf) chunks contain the complete subtrees below the trunk, from left
// to right.
//
// Chunks can be requested in random order via Chunk or in sequence via
// Iter, the latter being slightly faster. A producer reads from its own
// snapshot and is not safe for concurrent use.
type ChunkProducer struct {
	snap       snapshot
	trunk      []proofs.Op
	boundaries [][]byte
	cursor     *Cursor
	pos        position
}

func newChunkProducer(s snapshot) (*ChunkProducer, error) {
	trunk, hasMore, err := createTrunk(s)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("merk: create trunk: %w", err)
	}

	var boundaries [][]byte
	if hasMore {
		boundaries = trunkBoundaries(trunk)
	}

	cursor := newCursor(s)
	cursor.SeekToFirst()
	if err := cursor.Err(); err != nil {
		cursor.Release()
		s.release()
		return nil, fmt.Errorf("merk: create cursor: %w", err)
	}

	return &ChunkProducer{
		snap:       s,
		trunk:      trunk,
		boundaries: boundaries,
		cursor:     cursor,
	}, nil
}

// Len returns the total number of chunks.
func (p *ChunkProducer) Len() int {
	if len(p.boundaries) == 0 {
		return 1
	}
	return len(p.boundaries) + 2
}

// Chunk returns the encoded chunk at index. It may return an
// ErrIndexOutOfBounds error.
func (p *ChunkProducer) Chunk(index int) ([]byte, error) {
	if index < 0 || index >= p.Len() {
		return nil, ErrIndexOutOfBounds
	}

	if index < 2 {
		p.cursor.SeekToFirst()
	} else {
		p.cursor.Seek(p.boundaries[index-2])
		p.cursor.Next()
	}
	if err := p.cursor.Err(); err != nil {
		return nil, fmt.Errorf("merk: chunk %d: %w", index, err)
	}

	p.seek(index)
	chunk, err := p.nextChunk()
	if err != nil {
		return nil, fmt.Errorf("merk: chunk %d: %w", index, err)
	}
	return chunk, nil
}

// Iter returns an iterator over the remaining chunks, starting with the
// chunk following the last produced one. The iterator takes ownership of
// the producer.
func (p *ChunkProducer) Iter() *ChunkIter {
	return &ChunkIter{p: p}
}

// Release releases the producer and its snapshot.
func (p *ChunkProducer) Release() {
	if p.cursor != nil {
		p.cursor.Release()
		p.cursor = nil
		p.snap.release()
	}
}

func (p *ChunkProducer) seek(index int) {
	switch {
	case index == 0:
		p.pos = position{stage: atTrunk}
	case index < p.Len():
		p.pos = position{stage: atLeaf, leaf: index}
	default:
		p.pos = position{stage: exhausted}
	}
}

// nextChunk produces the chunk at the current position, reading leaf
// chunks from the cursor's current position. It must not be called once
// the producer is exhausted.
func (p *ChunkProducer) nextChunk() ([]byte, error) {
	switch p.pos.stage {
	case atTrunk:
		p.seek(1)
		return proofs.Encode(p.trunk), nil
	case atLeaf:
		index := p.pos.leaf

		var end []byte
		if index-1 < len(p.boundaries) {
			end = p.boundaries[index-1]
		}
		p.seek(index + 1)

		ops, err := buildLeafChunk(p.cursor, end)
		if err != nil {
			return nil, err
		}
		return proofs.Encode(ops), nil
	}
	panic("merk: nextChunk called after the last chunk")
}

// --------------------------------------------------------------------

// ChunkIter iterates over chunks in order.
type ChunkIter struct {
	p     *ChunkProducer
	chunk []byte
	err   error
}

// Len returns the total number of chunks, including the ones which have
// already been consumed.
func (i *ChunkIter) Len() int { return i.p.Len() }

// Next advances the iterator and returns true if successful.
func (i *ChunkIter) Next() bool {
	if i.err != nil || i.p.pos.stage == exhausted {
		i.chunk = nil
		return false
	}

	index := i.p.pos.index(i.p.Len())
	chunk, err := i.p.nextChunk()
	if err != nil {
		i.chunk = nil
		i.err = fmt.Errorf("merk: chunk %d: %w", index, err)
		return false
	}
	i.chunk = chunk
	return true
}

// Chunk returns the current chunk.
func (i *ChunkIter) Chunk() []byte { return i.chunk }

// Err exposes iterator errors, if any.
func (i *ChunkIter) Err() error { return i.err }

// Release releases the underlying producer.
func (i *ChunkIter) Release() { i.p.Release() }
