package merk_test

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/bsm/merk"
	"github.com/bsm/merk/proofs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Restorer", func() {
	var source *merk.Merk
	var chunks [][]byte
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "merk-test")
		Expect(err).NotTo(HaveOccurred())

		source = seedMerk(2000)
		p, err := source.Chunks()
		Expect(err).NotTo(HaveOccurred())
		chunks = collectChunks(p)
		p.Release()
		Expect(chunks).To(HaveLen(33))
	})

	AfterEach(func() {
		Expect(source.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	newRestorer := func(hash proofs.Hash) *merk.Restorer {
		r, err := merk.NewRestorer(filepath.Join(dir, "restored"), hash, nil)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("should restore chunks in any order", func() {
		r := newRestorer(source.RootHash())
		Expect(r.Len()).To(Equal(0))
		Expect(r.Remaining()).To(Equal([]int{0}))

		Expect(r.ProcessChunk(0, chunks[0])).To(Succeed())
		Expect(r.Len()).To(Equal(33))
		Expect(r.Remaining()).To(HaveLen(32))

		for n, i := range rand.New(rand.NewSource(3)).Perm(32) {
			Expect(r.ProcessChunk(i+1, chunks[i+1])).To(Succeed(), "for chunk %d", i+1)
			Expect(r.Remaining()).To(HaveLen(31 - n))
		}

		db, err := r.Finalize()
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		Expect(db.RootHash()).To(Equal(source.RootHash()))
		Expect(db.CheckTree()).To(Equal(2000))
		Expect(db.Get(seqKey(1234))).To(Equal(seqValue(1234)))

		p, err := db.Chunks()
		Expect(err).NotTo(HaveOccurred())
		defer p.Release()
		Expect(collectChunks(p)).To(Equal(chunks))

		// restored trees accept further writes
		Expect(db.Apply([]merk.BatchEntry{merk.Delete(seqKey(3))})).To(Succeed())
		Expect(db.CheckTree()).To(Equal(1999))
	})

	It("should restore small trees", func() {
		small := seedMerk(100)
		defer small.Close()

		p, err := small.Chunks()
		Expect(err).NotTo(HaveOccurred())
		defer p.Release()
		Expect(p.Len()).To(Equal(1))

		trunk, err := p.Chunk(0)
		Expect(err).NotTo(HaveOccurred())

		r := newRestorer(small.RootHash())
		Expect(r.ProcessChunk(0, trunk)).To(Succeed())
		Expect(r.Len()).To(Equal(1))
		Expect(r.Remaining()).To(BeEmpty())

		db, err := r.Finalize()
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		Expect(db.RootHash()).To(Equal(small.RootHash()))
		Expect(db.CheckTree()).To(Equal(100))
	})

	It("should restore empty trees", func() {
		r := newRestorer(proofs.NullHash)
		Expect(r.ProcessChunk(0, nil)).To(Succeed())

		db, err := r.Finalize()
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		Expect(db.RootHash()).To(Equal(proofs.NullHash))
	})

	It("should require the trunk first", func() {
		r := newRestorer(source.RootHash())
		defer r.Close()

		Expect(r.ProcessChunk(1, chunks[1])).To(MatchError(merk.ErrChunkOrder))
	})

	It("should reject unexpected chunks", func() {
		r := newRestorer(source.RootHash())
		defer r.Close()

		Expect(r.ProcessChunk(0, chunks[0])).To(Succeed())
		Expect(r.ProcessChunk(1, chunks[1])).To(Succeed())

		for _, index := range []int{0, 1, 33, -1} {
			err := r.ProcessChunk(index, chunks[1])
			Expect(errors.Is(err, merk.ErrUnexpectedChunk)).To(BeTrue(), "for chunk %d: %v", index, err)
		}
	})

	It("should reject trunks of other trees", func() {
		r := newRestorer(proofs.KVHash([]byte("other"), nil))
		defer r.Close()

		err := r.ProcessChunk(0, chunks[0])
		Expect(errors.Is(err, proofs.ErrHashMismatch)).To(BeTrue(), "unexpected %v", err)
		Expect(r.Remaining()).To(Equal([]int{0}))
	})

	It("should reject mismatching leaf chunks", func() {
		r := newRestorer(source.RootHash())
		defer r.Close()

		Expect(r.ProcessChunk(0, chunks[0])).To(Succeed())
		err := r.ProcessChunk(2, chunks[3])
		Expect(errors.Is(err, proofs.ErrHashMismatch)).To(BeTrue(), "unexpected %v", err)

		err = r.ProcessChunk(2, []byte{0xff})
		Expect(err).To(MatchError(`merk: chunk 2: proofs: bad opcode 0xff at offset 0`))

		Expect(r.ProcessChunk(2, chunks[2])).To(Succeed())
		Expect(r.Remaining()).To(HaveLen(31))
	})

	It("should not finalize incomplete restores", func() {
		r := newRestorer(source.RootHash())
		defer r.Close()

		_, err := r.Finalize()
		Expect(err).To(MatchError(`merk: restore incomplete, 1 chunks remaining`))

		Expect(r.ProcessChunk(0, chunks[0])).To(Succeed())
		Expect(r.ProcessChunk(5, chunks[5])).To(Succeed())
		_, err = r.Finalize()
		Expect(err).To(MatchError(`merk: restore incomplete, 31 chunks remaining`))
	})

	It("should require an empty target", func() {
		path := filepath.Join(dir, "existing")
		db, err := merk.Open(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Apply(seqBatch(0, 10))).To(Succeed())
		Expect(db.Close()).To(Succeed())

		_, err = merk.NewRestorer(path, source.RootHash(), nil)
		Expect(err).To(MatchError(`merk: store is not empty`))
	})
})
