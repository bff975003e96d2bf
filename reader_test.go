package docset_test

import (
	"math/rand"
	"os"
	"path/filepath"

	"github.com/bsm/docset"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"
)

var _ = Describe("Reader", func() {
	var dir, path string
	var subject *docset.Reader

	// 100 documents with a 16-entry block size = 7 index blocks.
	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "docset-test")
		Expect(err).NotTo(HaveOccurred())

		path = filepath.Join(dir, "test.ds")
		Expect(seedSet(path, 100, 0)).To(Succeed())

		subject, err = docset.NewReader(path, &docset.ReaderOptions{BlockSize: 16})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = subject.Close()
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should init", func() {
		Expect(subject.Len()).To(Equal(100))
		Expect(subject.Meta()).To(Equal(bson.D{{Key: "origin", Value: "seed"}}))
	})

	It("should read sequentially", func() {
		for i := 0; i < 100; i++ {
			Expect(subject.Read(i)).To(Equal(seedDoc(i)), "for %d", i)
		}
	})

	It("should read in reverse", func() {
		for i := 99; i >= 0; i-- {
			Expect(subject.Read(i)).To(Equal(seedDoc(i)), "for %d", i)
		}
	})

	It("should read in random order", func() {
		rnd := rand.New(rand.NewSource(1))
		for _, i := range rnd.Perm(100) {
			Expect(subject.Read(i)).To(Equal(seedDoc(i)), "for %d", i)
		}
	})

	It("should read positions repeatedly", func() {
		first, err := subject.Read(42)
		Expect(err).NotTo(HaveOccurred())
		second, err := subject.Read(42)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("should panic on out-of-range positions", func() {
		Expect(func() { _, _ = subject.Read(-1) }).To(Panic())
		Expect(func() { _, _ = subject.Read(100) }).To(Panic())
	})

	It("should prevent reads after close", func() {
		Expect(subject.Close()).To(Succeed())
		_, err := subject.Read(0)
		Expect(err).To(MatchError(`docset: is closed`))
	})

	It("should close idempotently", func() {
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(Succeed())
	})

	It("should reject foreign files", func() {
		other := filepath.Join(dir, "other.bin")
		Expect(os.WriteFile(other, make([]byte, 512), 0644)).To(Succeed())

		_, err := docset.NewReader(other, nil)
		Expect(err).To(MatchError(docset.ErrInvalidFormat))
	})

	It("should reject incomplete containers", func() {
		partial := filepath.Join(dir, "partial.ds")
		Expect(writeIncompleteHeader(partial)).To(Succeed())

		_, err := docset.NewReader(partial, nil)
		Expect(err).To(MatchError(docset.ErrIncomplete))
	})

	It("should reject corrupted metadata", func() {
		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		// truncate into the metadata block
		corrupt := filepath.Join(dir, "corrupt.ds")
		Expect(os.WriteFile(corrupt, raw[:len(raw)-3], 0644)).To(Succeed())

		_, err = docset.NewReader(corrupt, nil)
		Expect(err).To(MatchError(docset.ErrCorruptMeta))
	})
})
