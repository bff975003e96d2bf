package docset_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/bsm/docset"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"
)

var _ = Describe("LegacyWriter", func() {
	var dir, path string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "docset-test")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(dir, "legacy.ds")
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should pad the head region", func() {
		subject, err := docset.NewLegacyWriter(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(subject.Close()).To(Succeed())

		fi, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(fi.Size()).To(Equal(int64(4096)))
	})

	It("should prevent writes after close", func() {
		subject, err := docset.NewLegacyWriter(path, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Write(seedDoc(0))).To(MatchError(`docset: is closed`))
	})

	It("should drop user metadata that exceeds the head size", func() {
		subject, err := docset.NewLegacyWriter(path, &docset.LegacyWriterOptions{HeadSize: 512})
		Expect(err).NotTo(HaveOccurred())
		defer subject.Close()

		Expect(subject.Write(seedDoc(0))).To(Succeed())
		subject.SetMeta("comment", strings.Repeat("x", 1024))
		Expect(subject.Close()).To(Succeed())

		c, err := docset.Open(path, nil)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		Expect(c.Meta()).To(BeEmpty())
		Expect(c.Len()).To(Equal(1))
		Expect(c.Read(0)).To(Equal(seedDoc(0)))
	})
})

var _ = Describe("LegacyReader", func() {
	var dir, path string
	var subject *docset.LegacyReader

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "docset-test")
		Expect(err).NotTo(HaveOccurred())

		path = filepath.Join(dir, "legacy.ds")
		Expect(seedLegacySet(path, 100, 0)).To(Succeed())

		subject, err = docset.NewLegacyReader(path, &docset.ReaderOptions{BlockSize: 16})
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

	It("should strip the reserved head keys", func() {
		for _, e := range subject.Meta() {
			Expect(e.Key).NotTo(HavePrefix("__"))
		}
	})

	It("should read in any order", func() {
		rnd := rand.New(rand.NewSource(1))
		for _, i := range rnd.Perm(100) {
			Expect(subject.Read(i)).To(Equal(seedDoc(i)), "for %d", i)
		}
		for i := 0; i < 100; i++ {
			Expect(subject.Read(i)).To(Equal(seedDoc(i)), "for %d", i)
		}
	})

	It("should panic on out-of-range positions", func() {
		Expect(func() { _, _ = subject.Read(100) }).To(Panic())
	})

	It("should prevent reads after close", func() {
		Expect(subject.Close()).To(Succeed())
		_, err := subject.Read(0)
		Expect(err).To(MatchError(`docset: is closed`))
	})

	It("should reject heads with missing reserved keys", func() {
		abandoned := filepath.Join(dir, "abandoned.ds")
		w, err := docset.NewLegacyWriter(abandoned, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Write(seedDoc(0))).To(Succeed())
		// abandoned without Close: the head's index offset is still null

		_, err = docset.NewLegacyReader(abandoned, nil)
		Expect(err).To(MatchError(docset.ErrCorruptMeta))
		Expect(errors.Is(err, docset.ErrCorruptMeta)).To(BeTrue())

		Expect(w.Close()).To(Succeed())
	})
})
