package docset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// ReaderOptions define reader specific options. They are shared by the
// current-format and the legacy reader.
type ReaderOptions struct {
	// BlockSize is the number of index entries fetched together when a
	// position is read whose file offset is not cached yet. It is a
	// performance knob, not a correctness one.
	// Default: 512.
	BlockSize int

	// BufferSize is the size of the read buffer in bytes.
	// Default: 1MiB.
	BufferSize int
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = DefaultBlockSize
	}
	if oo.BufferSize < 1 {
		oo.BufferSize = DefaultReadBufferSize
	}
	return &oo
}

// Reader instances provide random access to the documents of a container
// file in the current format. Readers are not safe for concurrent use by
// multiple goroutines; open one reader per worker instead, the format is
// immutable once written.
type Reader struct {
	path string
	o    *ReaderOptions

	f   *os.File
	br  *bufio.Reader
	pid int

	size       int64 // file size
	count      int
	indexStart int64
	meta       bson.D

	index  []uint64
	blocks []bool // per-block loaded markers
	closed bool

	tmp []byte
}

// NewReader opens a container file in the current format. It returns
// ErrInvalidFormat if the magic tag does not match and ErrIncomplete if the
// container was never finalised; both conditions make Open fall back to the
// legacy format.
func NewReader(path string, o *ReaderOptions) (*Reader, error) {
	o = o.norm()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		path: path,
		o:    o,
		f:    f,
		br:   bufio.NewReaderSize(f, o.BufferSize),
		pid:  os.Getpid(),
		tmp:  make([]byte, headerSize),
	}
	if err := r.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	stat, err := r.f.Stat()
	if err != nil {
		return err
	}
	r.size = stat.Size()

	if _, err := io.ReadFull(r.br, r.tmp[:headerSize]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrInvalidFormat
		}
		return err
	}
	if !bytes.Equal(r.tmp[:8], magic) {
		return ErrInvalidFormat
	}
	count := binary.LittleEndian.Uint64(r.tmp[8:])
	indexStart := binary.LittleEndian.Uint64(r.tmp[16:])
	metaStart := binary.LittleEndian.Uint64(r.tmp[24:])
	if indexStart == noneValue || metaStart == noneValue {
		return ErrIncomplete
	}
	r.count = int(count)
	r.indexStart = int64(indexStart)

	if err := r.seekTo(int64(metaStart)); err != nil {
		return err
	}
	data, err := r.readBlob()
	if err != nil {
		return errors.Mark(err, ErrCorruptMeta)
	}
	meta, err := DecodeDoc(data)
	if err != nil {
		return errors.Mark(err, ErrCorruptMeta)
	}
	r.meta = meta

	r.index = make([]uint64, r.count)
	for i := range r.index {
		r.index[i] = noneValue
	}
	r.blocks = make([]bool, (r.count+r.o.BlockSize-1)/r.o.BlockSize)
	return nil
}

// Len returns the number of documents in the container.
func (r *Reader) Len() int { return r.count }

// Meta returns the user metadata stored in the container.
func (r *Reader) Meta() bson.D { return r.meta }

// Read returns the document at position i. Reading a position twice always
// yields the same document; the block-granular index cache only changes the
// access pattern cost. Read panics if i is out of range.
func (r *Reader) Read(i int) (bson.D, error) {
	if i < 0 || i >= r.count {
		panic("docset: index out of range")
	}
	if err := r.ensure(); err != nil {
		return nil, err
	}

	if b := i / r.o.BlockSize; !r.blocks[b] {
		if err := r.loadBlock(b); err != nil {
			return nil, err
		}
	}

	if err := r.seekTo(int64(r.index[i])); err != nil {
		return nil, err
	}
	data, err := r.readBlob()
	if err != nil {
		return nil, err
	}
	return DecodeDoc(data)
}

// Close releases the file handle; the reader must not be used afterwards.
// It is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

// loadBlock fetches the aligned run of index entries containing block b in a
// single sequential pass.
func (r *Reader) loadBlock(b int) error {
	left := b * r.o.BlockSize
	right := left + r.o.BlockSize
	if right > r.count {
		right = r.count
	}

	if err := r.seekTo(r.indexStart + int64(uint64Size*left)); err != nil {
		return err
	}
	buf := make([]byte, uint64Size*(right-left))
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return err
	}
	for j := left; j < right; j++ {
		r.index[j] = binary.LittleEndian.Uint64(buf[(j-left)*uint64Size:])
	}
	r.blocks[b] = true
	return nil
}

// ensure re-establishes the file handle if the calling process identity has
// changed since the handle was acquired. The index cache holds absolute file
// offsets and stays valid across the swap.
func (r *Reader) ensure() error {
	if r.closed {
		return errClosed
	}
	if pid := os.Getpid(); pid != r.pid {
		_ = r.f.Close()
		f, err := os.Open(r.path)
		if err != nil {
			return err
		}
		r.f = f
		r.pid = pid
	}
	return nil
}

func (r *Reader) seekTo(off int64) error {
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.f)
	return nil
}

// readBlob reads a length-prefixed byte blob at the current position.
func (r *Reader) readBlob() ([]byte, error) {
	if _, err := io.ReadFull(r.br, r.tmp[:uint64Size]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint64(r.tmp[:uint64Size])
	if size > uint64(r.size) {
		return nil, errors.Errorf("docset: record size %d exceeds file size %d", size, r.size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return nil, err
	}
	return data, nil
}
