package docset

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DType describes a fixed-width numeric element type using the numpy array
// interface notation: a byte-order character ('<' little-endian, '|' not
// applicable) followed by a kind character and the element size in bytes.
type DType string

// Supported element types.
const (
	Bool    DType = "|b1"
	Int8    DType = "|i1"
	Uint8   DType = "|u1"
	Int16   DType = "<i2"
	Int32   DType = "<i4"
	Int64   DType = "<i8"
	Uint16  DType = "<u2"
	Uint32  DType = "<u4"
	Uint64  DType = "<u8"
	Float16 DType = "<f2"
	Float32 DType = "<f4"
	Float64 DType = "<f8"
)

var dtypeSizes = map[DType]int{
	Bool: 1, Int8: 1, Uint8: 1,
	"<i1": 1, "<u1": 1, // alternate spellings of the single-byte types
	Int16: 2, Int32: 4, Int64: 8,
	Uint16: 2, Uint32: 4, Uint64: 8,
	Float16: 2, Float32: 4, Float64: 8,
}

// Size returns the element size in bytes, or 0 if the type is unknown.
func (t DType) Size() int { return dtypeSizes[t] }

// NDArray is an N-dimensional numeric array: an element type, a shape and a
// contiguous row-major byte buffer. A rank-0 array holds exactly one element.
type NDArray struct {
	DType DType
	Shape []int
	Data  []byte
}

// NewNDArray constructs an array, validating that the buffer length matches
// the shape/type product.
func NewNDArray(dtype DType, shape []int, data []byte) (NDArray, error) {
	sz := dtype.Size()
	if sz == 0 {
		return NDArray{}, errors.Errorf("docset: unknown dtype %q", string(dtype))
	}
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return NDArray{}, errors.Errorf("docset: negative dimension %d", dim)
		}
		n *= dim
	}
	if len(data) != n*sz {
		return NDArray{}, errors.Errorf("docset: buffer size %d does not match dtype %s with shape %v", len(data), string(dtype), shape)
	}
	return NDArray{DType: dtype, Shape: shape, Data: data}, nil
}

// Elems returns the number of elements, the product of all dimensions.
func (a NDArray) Elems() int {
	n := 1
	for _, dim := range a.Shape {
		n *= dim
	}
	return n
}

// Size returns the byte length of the array buffer.
func (a NDArray) Size() int { return len(a.Data) }

func (a NDArray) String() string {
	return "ndarray(dtype=" + string(a.DType) + ", shape=" + formatShape(a.Shape) + ")"
}

// EncodeNDArray encodes an array as the element type tag, followed by the
// shape rendered as a tuple, followed by the raw row-major bytes.
func EncodeNDArray(a NDArray) []byte {
	shape := formatShape(a.Shape)

	data := make([]byte, 0, len(a.DType)+len(shape)+len(a.Data))
	data = append(data, a.DType...)
	data = append(data, shape...)
	data = append(data, a.Data...)
	return data
}

// DecodeNDArray decodes an array from its flat byte representation. The
// returned array owns its buffer and never aliases data.
func DecodeNDArray(data []byte) (NDArray, error) {
	i := bytes.IndexByte(data, '(')
	if i < 0 {
		return NDArray{}, errors.New("docset: malformed ndarray, missing shape")
	}
	j := bytes.IndexByte(data[i:], ')')
	if j < 0 {
		return NDArray{}, errors.New("docset: malformed ndarray, unterminated shape")
	}
	j += i

	dtype := DType(data[:i])
	shape, err := parseShape(string(data[i+1 : j]))
	if err != nil {
		return NDArray{}, err
	}

	buf := make([]byte, len(data)-j-1)
	copy(buf, data[j+1:])

	return NewNDArray(dtype, shape, buf)
}

func formatShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return "(" + strconv.Itoa(shape[0]) + ",)"
	}

	var sb strings.Builder
	sb.WriteByte('(')
	for i, dim := range shape {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(dim))
	}
	sb.WriteByte(')')
	return sb.String()
}

func parseShape(s string) ([]int, error) {
	shape := make([]int, 0, 4)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		dim, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.Errorf("docset: malformed ndarray dimension %q", tok)
		}
		shape = append(shape, dim)
	}
	return shape, nil
}
