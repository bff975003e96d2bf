package docset_test

import (
	"github.com/bsm/docset"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ = Describe("EncodeDoc/DecodeDoc", func() {
	It("should round-trip plain documents", func() {
		doc := bson.D{
			{Key: "name", Value: "plain"},
			{Key: "count", Value: int64(42)},
			{Key: "ratio", Value: 0.5},
			{Key: "flag", Value: true},
			{Key: "none", Value: nil},
		}

		data, err := docset.EncodeDoc(doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(docset.DecodeDoc(data)).To(Equal(doc))
	})

	It("should round-trip arrays at any nesting depth", func() {
		vec := docset.NDArray{DType: docset.Uint8, Shape: []int{2, 2}, Data: []byte{1, 2, 3, 4}}
		doc := bson.D{
			{Key: "vec", Value: vec},
			{Key: "nested", Value: bson.D{{Key: "inner", Value: vec}}},
			{Key: "list", Value: bson.A{"label", vec}},
		}

		data, err := docset.EncodeDoc(doc)
		Expect(err).NotTo(HaveOccurred())

		out, err := docset.DecodeDoc(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Value).To(Equal(vec))
		Expect(out[1].Value).To(Equal(bson.D{{Key: "inner", Value: vec}}))
		Expect(out[2].Value).To(Equal(bson.A{"label", vec}))
	})

	It("should pass other binary values through unmodified", func() {
		// payload deliberately shaped like an array encoding, but stored
		// under the generic subtype
		bin := primitive.Binary{Data: []byte("<f4(1,)abcd")}
		doc := bson.D{{Key: "blob", Value: bin}}

		data, err := docset.EncodeDoc(doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(docset.DecodeDoc(data)).To(Equal(doc))
	})

	It("should fail on truncated input", func() {
		data, err := docset.EncodeDoc(bson.D{{Key: "name", Value: "plain"}})
		Expect(err).NotTo(HaveOccurred())

		_, err = docset.DecodeDoc(data[:len(data)-2])
		Expect(err).To(HaveOccurred())
	})

	It("should surface array decode failures", func() {
		data, err := docset.EncodeDoc(bson.D{
			{Key: "bad", Value: primitive.Binary{Subtype: 0x81, Data: []byte("<f4(2,)abc")}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = docset.DecodeDoc(data)
		Expect(err).To(HaveOccurred())
	})
})
