package merk

import (
	"bytes"
	"fmt"

	"github.com/bsm/merk/table"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var _ = Describe("Cursor", func() {
	var db *leveldb.DB
	var snaps map[string]snapshot

	BeforeEach(func() {
		var err error
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
		Expect(err).NotTo(HaveOccurred())

		batch := new(leveldb.Batch)
		batch.Put(rootMetaKey, []byte("k010"))
		for i := 0; i < 50; i++ {
			batch.Put(nodeKey([]byte(fmt.Sprintf("k%03d", i*2))), []byte{byte(i)})
		}
		batch.Put([]byte("zzz"), []byte("not a node"))
		Expect(db.Write(batch, nil)).To(Succeed())

		s, err := db.GetSnapshot()
		Expect(err).NotTo(HaveOccurred())

		buf := new(bytes.Buffer)
		w := table.NewWriter(buf, &table.WriterOptions{BlockSize: 64, BlockRestartInterval: 4})
		it := s.NewIterator(nil, nil)
		for it.Next() {
			Expect(w.Append(it.Key(), it.Value())).To(Succeed())
		}
		it.Release()
		Expect(w.Close()).To(Succeed())

		r, err := table.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		Expect(err).NotTo(HaveOccurred())

		snaps = map[string]snapshot{
			"leveldb": levelSnapshot{s: s},
			"table":   tableSnapshot{r: r},
		}
	})

	AfterEach(func() {
		for _, s := range snaps {
			s.release()
		}
		Expect(db.Close()).To(Succeed())
	})

	for _, name := range []string{"leveldb", "table"} {
		name := name

		It("should iterate nodes with "+name, func() {
			c := newCursor(snaps[name])
			defer c.Release()

			var keys []string
			for c.SeekToFirst(); c.Valid(); c.Next() {
				keys = append(keys, string(c.Key()))
			}
			Expect(c.Err()).NotTo(HaveOccurred())
			Expect(keys).To(HaveLen(50))
			Expect(keys[0]).To(Equal("k000"))
			Expect(keys[49]).To(Equal("k098"))
			Expect(c.Next()).To(BeFalse())
		})

		It("should seek with "+name, func() {
			c := newCursor(snaps[name])
			defer c.Release()

			Expect(c.Seek([]byte("k010"))).To(BeTrue())
			Expect(string(c.Key())).To(Equal("k010"))
			Expect(c.Value()).To(Equal([]byte{5}))

			Expect(c.Seek([]byte("k011"))).To(BeTrue())
			Expect(string(c.Key())).To(Equal("k012"))
			Expect(c.Next()).To(BeTrue())
			Expect(string(c.Key())).To(Equal("k014"))

			Expect(c.Seek([]byte("k099"))).To(BeFalse())
			Expect(c.Valid()).To(BeFalse())
			Expect(c.Key()).To(BeNil())

			Expect(c.SeekToFirst()).To(BeTrue())
			Expect(string(c.Key())).To(Equal("k000"))
		})

		It("should get with "+name, func() {
			s := snaps[name]
			Expect(s.get(rootMetaKey)).To(Equal([]byte("k010")))

			_, err := s.get(nodeKey([]byte("k001")))
			Expect(err).To(MatchError(ErrNotFound))
		})
	}
})
