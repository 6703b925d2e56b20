package proofs_test

import (
	"errors"

	"github.com/bsm/merk/proofs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("VerifyTrunk", func() {
	It("should verify empty trunks", func() {
		tree, height, err := proofs.VerifyTrunk(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(tree).To(BeNil())
		Expect(height).To(Equal(0))
	})

	It("should verify small trees", func() {
		full := seedTree(4)

		tree, height, err := proofs.VerifyTrunk(seedProof(4, 0))
		Expect(err).NotTo(HaveOccurred())
		Expect(height).To(Equal(4))
		Expect(tree.Hash()).To(Equal(full.Hash()))

		_, _, err = proofs.VerifyTrunk(trunkOps(full))
		Expect(err).To(MatchError(`proofs: trunk below minimum height must contain the full tree`))
	})

	Describe("large trees", func() {
		var full *proofs.Tree
		var ops []proofs.Op

		// 1023 keys, trunk height 5
		BeforeEach(func() {
			full = seedTree(10)
			ops = trunkOps(full)
		})

		It("should verify", func() {
			tree, height, err := proofs.VerifyTrunk(ops)
			Expect(err).NotTo(HaveOccurred())
			Expect(height).To(Equal(10))
			Expect(tree.Hash()).To(Equal(full.Hash()))

			var kvs int
			Expect(tree.Visit(func(t *proofs.Tree) error {
				if t.Node.Type == proofs.KVNode {
					kvs++
				}
				return nil
			})).To(Succeed())
			Expect(kvs).To(Equal(31))

			leaves := tree.Layer(height / 2)
			Expect(leaves).To(HaveLen(32))
			Expect(leaves[0].Node.Type).To(Equal(proofs.KVHashNode))
			for i, leaf := range leaves[1:] {
				Expect(leaf.Node.Type).To(Equal(proofs.HashNode), "for leaf %d", i+1)
			}

			for i, sub := range full.Layer(5) {
				leaf, err := proofs.VerifyLeaf(kvOps(sub), leaves[i].Hash())
				Expect(err).NotTo(HaveOccurred(), "for leaf %d", i)
				Expect(leaf.Height()).To(Equal(5))
			}
		})

		It("should reject hashes in the height proof", func() {
			Expect(ops[0].Node.Type).To(Equal(proofs.KVHashNode))
			ops[0] = proofs.Push(proofs.NewHashNode(ops[0].Node.Hash))

			_, _, err := proofs.VerifyTrunk(ops)
			Expect(err).To(MatchError(`proofs: height proof must only contain KV and KVHash nodes`))
		})

		It("should reject incomplete inner nodes", func() {
			for i, op := range ops {
				if op.Type == proofs.PushOp && op.Node.Type == proofs.KVNode && string(op.Node.Key) == string(seedKey(511)) {
					ops[i] = proofs.Push(proofs.NewKVHashNode(proofs.KVHash(op.Node.Key, op.Node.Value)))
				}
			}

			_, _, err := proofs.VerifyTrunk(ops)
			Expect(err).To(MatchError(`proofs: trunk inner nodes must contain keys and values`))
		})

		It("should reject revealing cut nodes", func() {
			last := -1
			for i, op := range ops {
				if op.Type == proofs.PushOp && op.Node.Type == proofs.HashNode {
					last = i
				}
			}
			Expect(last).To(BeNumerically(">", 0))
			ops[last] = proofs.Push(proofs.NewKVHashNode(ops[last].Node.Hash))

			_, _, err := proofs.VerifyTrunk(ops)
			Expect(err).To(MatchError(`proofs: trunk leaves must contain Hash nodes`))
		})
	})
})

var _ = Describe("VerifyLeaf", func() {
	It("should verify", func() {
		full := seedTree(3)

		tree, err := proofs.VerifyLeaf(seedProof(3, 0), full.Hash())
		Expect(err).NotTo(HaveOccurred())
		Expect(tree.Hash()).To(Equal(full.Hash()))
	})

	It("should reject mismatches", func() {
		_, err := proofs.VerifyLeaf(seedProof(3, 1), seedTree(3).Hash())
		Expect(errors.Is(err, proofs.ErrHashMismatch)).To(BeTrue(), "unexpected %v", err)
	})

	It("should reject non-KV nodes", func() {
		_, err := proofs.VerifyLeaf(trunkOps(seedTree(3)), seedTree(3).Hash())
		Expect(err).To(MatchError(`proofs: expected KV nodes only`))
	})

	It("should reject empty chunks", func() {
		_, err := proofs.VerifyLeaf(nil, proofs.NullHash)
		Expect(err).To(MatchError(`proofs: empty leaf chunk`))
	})
})
