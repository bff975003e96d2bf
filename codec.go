package docset

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ndarraySubtype is the reserved BSON binary subtype under which arrays are
// stored: the first subtype past the user-defined base 0x80. Binary values
// with any other subtype pass through unmodified.
const ndarraySubtype = byte(0x81)

var ndarrayType = reflect.TypeOf(NDArray{})

// registry extends the default BSON codecs with the NDArray encoder.
var registry = func() *bsoncodec.Registry {
	rb := bson.NewRegistryBuilder()
	rb.RegisterTypeEncoder(ndarrayType, bsoncodec.ValueEncoderFunc(encodeNDArrayValue))
	return rb.Build()
}()

func encodeNDArrayValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != ndarrayType {
		return bsoncodec.ValueEncoderError{Name: "encodeNDArrayValue", Types: []reflect.Type{ndarrayType}, Received: val}
	}
	a := val.Interface().(NDArray)
	return vw.WriteBinaryWithSubtype(EncodeNDArray(a), ndarraySubtype)
}

// EncodeDoc encodes a document, converting embedded NDArray values into
// binary values with the reserved subtype.
func EncodeDoc(doc bson.D) ([]byte, error) {
	data, err := bson.MarshalWithRegistry(registry, doc)
	if err != nil {
		return nil, errors.Wrap(err, "docset: encode document")
	}
	return data, nil
}

// DecodeDoc decodes a document, reviving binary values with the reserved
// subtype into NDArray values at any nesting depth.
func DecodeDoc(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalWithRegistry(registry, data, &doc); err != nil {
		return nil, errors.Wrap(err, "docset: decode document")
	}
	if err := reviveDoc(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func reviveDoc(doc bson.D) error {
	for i, e := range doc {
		v, err := reviveValue(e.Value)
		if err != nil {
			return err
		}
		doc[i].Value = v
	}
	return nil
}

func reviveValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case primitive.Binary:
		if t.Subtype == ndarraySubtype {
			return DecodeNDArray(t.Data)
		}
	case bson.D:
		if err := reviveDoc(t); err != nil {
			return nil, err
		}
	case bson.A:
		for i, e := range t {
			u, err := reviveValue(e)
			if err != nil {
				return nil, err
			}
			t[i] = u
		}
	}
	return v, nil
}
