package merk_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/merk"
	"github.com/bsm/merk/proofs"
	"github.com/bsm/merk/table"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Checkpoint", func() {
	var db *merk.Merk
	var dir, fname string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "merk-test")
		Expect(err).NotTo(HaveOccurred())
		fname = filepath.Join(dir, "checkpoint.tbl")

		db, err = merk.OpenMemory(&merk.Options{
			Table: &table.WriterOptions{BlockSize: 1024},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Apply(seqBatch(0, 500))).To(Succeed())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should write and open", func() {
		Expect(db.Checkpoint(fname)).To(Succeed())

		cp, err := merk.OpenCheckpoint(fname)
		Expect(err).NotTo(HaveOccurred())
		defer cp.Close()

		Expect(cp.RootHash()).To(Equal(db.RootHash()))
		Expect(cp.Get(seqKey(0))).To(Equal(seqValue(0)))
		Expect(cp.Get(seqKey(499))).To(Equal(seqValue(499)))

		_, err = cp.Get(seqKey(500))
		Expect(err).To(MatchError(merk.ErrNotFound))
	})

	It("should not be affected by later writes", func() {
		Expect(db.Checkpoint(fname)).To(Succeed())
		hash := db.RootHash()

		Expect(db.Apply([]merk.BatchEntry{merk.Delete(seqKey(7))})).To(Succeed())

		cp, err := merk.OpenCheckpoint(fname)
		Expect(err).NotTo(HaveOccurred())
		defer cp.Close()

		Expect(cp.RootHash()).To(Equal(hash))
		Expect(cp.Get(seqKey(7))).To(Equal(seqValue(7)))
	})

	It("should replace existing files atomically", func() {
		Expect(db.Checkpoint(fname)).To(Succeed())
		Expect(db.Apply(seqBatch(500, 600))).To(Succeed())
		Expect(db.Checkpoint(fname)).To(Succeed())

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))

		cp, err := merk.OpenCheckpoint(fname)
		Expect(err).NotTo(HaveOccurred())
		defer cp.Close()
		Expect(cp.RootHash()).To(Equal(db.RootHash()))
	})

	It("should checkpoint empty trees", func() {
		empty, err := merk.OpenMemory(nil)
		Expect(err).NotTo(HaveOccurred())
		defer empty.Close()
		Expect(empty.Checkpoint(fname)).To(Succeed())

		cp, err := merk.OpenCheckpoint(fname)
		Expect(err).NotTo(HaveOccurred())
		defer cp.Close()
		Expect(cp.RootHash()).To(Equal(proofs.NullHash))

		p, err := cp.Chunks()
		Expect(err).NotTo(HaveOccurred())
		defer p.Release()
		Expect(p.Len()).To(Equal(1))
		Expect(p.Chunk(0)).To(BeEmpty())
	})

	It("should reject bad files", func() {
		Expect(os.WriteFile(fname, []byte("not a checkpoint file"), 0o644)).To(Succeed())

		_, err := merk.OpenCheckpoint(fname)
		Expect(err).To(MatchError(`merk: open checkpoint ` + fname + `: table: bad magic byte sequence`))

		_, err = merk.OpenCheckpoint(filepath.Join(dir, "missing.tbl"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
