package proofs_test

import (
	"github.com/bsm/merk/proofs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Encoding", func() {
	hash := proofs.KVHash([]byte("key"), []byte("value"))
	ops := []proofs.Op{
		proofs.Push(proofs.NewKVNode([]byte("a"), []byte("1"))),
		proofs.Push(proofs.NewHashNode(hash)),
		proofs.Parent,
		proofs.Push(proofs.NewKVHashNode(hash)),
		proofs.Child,
	}

	It("should encode", func() {
		Expect(proofs.Encode(ops[2:3])).To(Equal([]byte{0x10}))
		Expect(proofs.Encode([]proofs.Op{
			proofs.Push(proofs.NewKVNode([]byte("ab"), []byte("c"))),
			proofs.Child,
		})).To(Equal([]byte{0x03, 2, 'a', 'b', 1, 'c', 0x11}))

		enc := proofs.Encode(ops)
		Expect(enc).To(HaveLen(5 + 2*(1+32) + 1 + 1))
		Expect(enc[5]).To(Equal(byte(0x01)))
		Expect(enc[5+33+1]).To(Equal(byte(0x02)))

		Expect(proofs.Encode(nil)).To(BeEmpty())
	})

	It("should append", func() {
		dst := proofs.AppendOp([]byte("prefix"), proofs.Parent)
		Expect(string(dst)).To(Equal("prefix\x10"))

		Expect(func() { proofs.AppendOp(nil, proofs.Op{}) }).To(Panic())
	})

	It("should decode", func() {
		Expect(proofs.Decode(proofs.Encode(ops))).To(Equal(ops))
		Expect(proofs.Decode(nil)).To(BeEmpty())
	})

	It("should decode incrementally", func() {
		dec := proofs.NewDecoder(proofs.Encode(ops))

		var types []proofs.OpType
		for dec.Next() {
			types = append(types, dec.Op().Type)
		}
		Expect(dec.Err()).NotTo(HaveOccurred())
		Expect(dec.More()).To(BeFalse())
		Expect(types).To(Equal([]proofs.OpType{
			proofs.PushOp, proofs.PushOp, proofs.ParentOp, proofs.PushOp, proofs.ChildOp,
		}))
	})

	It("should reject bad input", func() {
		_, err := proofs.Decode([]byte{0x01, 1, 2, 3})
		Expect(err).To(MatchError(`proofs: truncated op`))

		_, err = proofs.Decode([]byte{0x03, 5, 'a'})
		Expect(err).To(MatchError(`proofs: truncated op`))

		_, err = proofs.Decode([]byte{0x03, 1, 'a'})
		Expect(err).To(MatchError(`proofs: truncated op`))

		_, err = proofs.Decode([]byte{0x10, 0x20})
		Expect(err).To(MatchError(`proofs: bad opcode 0x20 at offset 1`))
	})

	It("should stop on errors", func() {
		dec := proofs.NewDecoder([]byte{0x10, 0xff, 0x11})
		Expect(dec.Next()).To(BeTrue())
		Expect(dec.Op()).To(Equal(proofs.Parent))
		Expect(dec.Next()).To(BeFalse())
		Expect(dec.Err()).To(HaveOccurred())
		Expect(dec.Next()).To(BeFalse())
		Expect(dec.More()).To(BeFalse())
	})

	It("should format ops", func() {
		Expect(ops[0].String()).To(Equal("Push(KV(61, 31))"))
		Expect(ops[2].String()).To(Equal("Parent"))
		Expect(ops[4].String()).To(Equal("Child"))
		Expect(ops[1].String()).To(Equal("Push(Hash(" + hash.String() + "))"))
	})
})
