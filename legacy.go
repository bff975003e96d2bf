package docset

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// The legacy layout embeds the metadata in a fixed-size head region at the
// start of the file instead of a trailing block. The head document carries
// three reserved keys which are stripped before the metadata is exposed.
const (
	legacyHeadSizeKey   = "__HDS__" // head region size
	legacyCountKey      = "__CNT__" // number of documents
	legacyIndexStartKey = "__IDX__" // index region offset

	// DefaultHeadSize is the default size of the legacy head region.
	DefaultHeadSize = 4096

	minHeadSize = 512
	maxHeadSize = 16 * 1024 * 1024
)

// LegacyReader reads containers in the legacy head-embedded layout. It is
// only ever selected by Open as a fallback; new containers are always
// written in the current format.
type LegacyReader struct {
	path string
	o    *ReaderOptions

	f   *os.File
	br  *bufio.Reader
	pid int

	size       int64
	count      int
	indexStart int64
	meta       bson.D

	index  []uint64
	blocks []bool
	closed bool

	tmp []byte
}

// NewLegacyReader opens a container file in the legacy format. The file
// handle used for probing the head is released again; reads lazily reacquire
// one.
func NewLegacyReader(path string, o *ReaderOptions) (*LegacyReader, error) {
	o = o.norm()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &LegacyReader{
		path: path,
		o:    o,
		tmp:  make([]byte, uint64Size),
	}
	if err := r.init(f); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *LegacyReader) init(f *os.File) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	r.size = stat.Size()

	if _, err := io.ReadFull(f, r.tmp[:uint64Size]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrInvalidFormat
		}
		return err
	}

	// A garbage or truncated file would yield an arbitrary head length;
	// reject anything larger than the head cap or the file itself before
	// allocating.
	headLen := binary.LittleEndian.Uint64(r.tmp[:uint64Size])
	if headLen > maxHeadSize || headLen > uint64(r.size) {
		return ErrInvalidFormat
	}

	data := make([]byte, headLen)
	if _, err := io.ReadFull(f, data); err != nil {
		return err
	}
	head, err := DecodeDoc(data)
	if err != nil {
		return errors.Mark(err, ErrInvalidFormat)
	}

	count, ok := legacyHeadInt(head, legacyCountKey)
	if !ok {
		return errors.Wrap(ErrCorruptMeta, legacyCountKey)
	}
	indexStart, ok := legacyHeadInt(head, legacyIndexStartKey)
	if !ok {
		return errors.Wrap(ErrCorruptMeta, legacyIndexStartKey)
	}
	if _, ok := legacyHeadInt(head, legacyHeadSizeKey); !ok {
		return errors.Wrap(ErrCorruptMeta, legacyHeadSizeKey)
	}
	r.count = int(count)
	r.indexStart = indexStart

	meta := make(bson.D, 0, len(head))
	for _, e := range head {
		switch e.Key {
		case legacyHeadSizeKey, legacyCountKey, legacyIndexStartKey:
		default:
			meta = append(meta, e)
		}
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
func (r *LegacyReader) Len() int { return r.count }

// Meta returns the user metadata, with the reserved head keys stripped.
func (r *LegacyReader) Meta() bson.D { return r.meta }

// Read returns the document at position i, loading the enclosing index block
// on first access. Read panics if i is out of range.
func (r *LegacyReader) Read(i int) (bson.D, error) {
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

// Close releases the file handle, if any. It is idempotent.
func (r *LegacyReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

func (r *LegacyReader) loadBlock(b int) error {
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

func (r *LegacyReader) ensure() error {
	if r.closed {
		return errClosed
	}
	if r.f != nil && os.Getpid() != r.pid {
		_ = r.f.Close()
		r.f = nil
	}
	if r.f == nil {
		f, err := os.Open(r.path)
		if err != nil {
			return err
		}
		r.f = f
		r.br = bufio.NewReaderSize(f, r.o.BufferSize)
		r.pid = os.Getpid()
	}
	return nil
}

func (r *LegacyReader) seekTo(off int64) error {
	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.f)
	return nil
}

func (r *LegacyReader) readBlob() ([]byte, error) {
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

func legacyHeadInt(doc bson.D, key string) (int64, bool) {
	for _, e := range doc {
		if e.Key != key {
			continue
		}
		switch v := e.Value.(type) {
		case int32:
			return int64(v), true
		case int64:
			return v, true
		}
		return 0, false
	}
	return 0, false
}

// --------------------------------------------------------------------

// LegacyWriterOptions define legacy writer specific options.
type LegacyWriterOptions struct {
	// HeadSize is the size in bytes of the fixed head region. It must be
	// large enough to hold the encoded metadata plus its length prefix;
	// if the user metadata does not fit, it is silently dropped and only
	// the reserved keys are written.
	// Default: 4096, minimum: 512.
	HeadSize int
}

func (o *LegacyWriterOptions) norm() *LegacyWriterOptions {
	var oo LegacyWriterOptions
	if o != nil {
		oo = *o
	}

	if oo.HeadSize < 1 {
		oo.HeadSize = DefaultHeadSize
	} else if oo.HeadSize < minHeadSize {
		oo.HeadSize = minHeadSize
	}
	return &oo
}

// LegacyWriter writes containers in the legacy head-embedded layout. It
// exists for back-compat tooling and fixture generation; Create never
// selects it.
type LegacyWriter struct {
	f *os.File
	o *LegacyWriterOptions

	offset int64
	index  []uint64
	meta   bson.D
	closed bool
}

// NewLegacyWriter creates path and returns a LegacyWriter with a provisional
// head region written. The head is rewritten with the final record count and
// index offset on Close.
func NewLegacyWriter(path string, o *LegacyWriterOptions) (*LegacyWriter, error) {
	o = o.norm()

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &LegacyWriter{f: f, o: o, offset: int64(o.HeadSize)}
	if err := w.writeHead(nil); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends a document to the container.
func (w *LegacyWriter) Write(doc bson.D) error {
	if w.closed {
		return errClosed
	}

	data, err := EncodeDoc(doc)
	if err != nil {
		return err
	}

	pos := uint64(w.offset)
	var tmp [uint64Size]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(data)))
	if _, err := w.f.WriteAt(tmp[:], w.offset); err != nil {
		return err
	}
	w.offset += uint64Size
	if _, err := w.f.WriteAt(data, w.offset); err != nil {
		return err
	}
	w.offset += int64(len(data))

	w.index = append(w.index, pos)
	return nil
}

// SetMeta sets a user metadata entry; the last write wins per key.
func (w *LegacyWriter) SetMeta(key string, value interface{}) {
	for i, e := range w.meta {
		if e.Key == key {
			w.meta[i].Value = value
			return
		}
	}
	w.meta = append(w.meta, bson.E{Key: key, Value: value})
}

// Meta returns the user metadata accumulated so far.
func (w *LegacyWriter) Meta() bson.D { return w.meta }

// Len returns the number of documents written so far.
func (w *LegacyWriter) Len() int { return len(w.index) }

// Close writes the index region, rewrites the head with the final record
// count and index offset and releases the file handle. It is idempotent.
func (w *LegacyWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	indexStart := w.offset
	buf := make([]byte, uint64Size*len(w.index))
	for i, pos := range w.index {
		binary.LittleEndian.PutUint64(buf[i*uint64Size:], pos)
	}
	if _, err := w.f.WriteAt(buf, indexStart); err != nil {
		return err
	}

	if err := w.writeHead(indexStart); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// writeHead writes the head document zero-padded to the configured head
// size. indexStart is nil until the index region has been written. If the
// user metadata does not fit the head region, the reserved keys are encoded
// alone.
func (w *LegacyWriter) writeHead(indexStart interface{}) error {
	reserved := bson.D{
		{Key: legacyHeadSizeKey, Value: int64(w.o.HeadSize)},
		{Key: legacyCountKey, Value: int64(len(w.index))},
		{Key: legacyIndexStartKey, Value: indexStart},
	}

	head := make(bson.D, 0, len(reserved)+len(w.meta))
	head = append(head, reserved...)
	head = append(head, w.meta...)

	data, err := EncodeDoc(head)
	if err != nil {
		return err
	}
	if uint64Size+len(data) > w.o.HeadSize {
		if data, err = EncodeDoc(reserved); err != nil {
			return err
		}
		if uint64Size+len(data) > w.o.HeadSize {
			return errors.Errorf("docset: head document exceeds head size %d", w.o.HeadSize)
		}
	}

	buf := make([]byte, w.o.HeadSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(len(data)))
	copy(buf[uint64Size:], data)
	_, err = w.f.WriteAt(buf, 0)
	return err
}
