package docset

import (
	"bufio"
	"encoding/binary"
	"os"

	"go.mongodb.org/mongo-driver/bson"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BufferSize is the size of the write buffer in bytes.
	// Default: 8MiB.
	BufferSize int
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BufferSize < 1 {
		oo.BufferSize = DefaultWriteBufferSize
	}
	return &oo
}

// Writer instances append documents to a new container file. A writer owns
// its file handle for its entire lifetime and must be closed to finalise the
// container; an unclosed container is unreadable. Close is idempotent, so
// deferring it at the construction site is always safe.
type Writer struct {
	f *os.File
	w *bufio.Writer
	o *WriterOptions

	offset int64
	index  []uint64
	meta   bson.D
	closed bool

	tmp []byte
}

// NewWriter creates path and returns a Writer positioned after a placeholder
// header. The header is rewritten with the final record count and region
// offsets on Close.
func NewWriter(path string, o *WriterOptions) (*Writer, error) {
	o = o.norm()

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		f:   f,
		w:   bufio.NewWriterSize(f, o.BufferSize),
		o:   o,
		tmp: make([]byte, headerSize),
	}
	if err := w.writeRaw(w.header(0, noneValue, noneValue)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends a document to the container.
func (w *Writer) Write(doc bson.D) error {
	if w.closed {
		return errClosed
	}

	data, err := EncodeDoc(doc)
	if err != nil {
		return err
	}

	pos := uint64(w.offset)
	if err := w.writeUint64(uint64(len(data))); err != nil {
		return err
	}
	if err := w.writeRaw(data); err != nil {
		return err
	}
	w.index = append(w.index, pos)
	return nil
}

// SetMeta sets a user metadata entry. It may be called any time before
// Close; the last write wins per key.
func (w *Writer) SetMeta(key string, value interface{}) {
	for i, e := range w.meta {
		if e.Key == key {
			w.meta[i].Value = value
			return
		}
	}
	w.meta = append(w.meta, bson.E{Key: key, Value: value})
}

// Meta returns the user metadata accumulated so far.
func (w *Writer) Meta() bson.D { return w.meta }

// Len returns the number of documents written so far.
func (w *Writer) Len() int { return len(w.index) }

// Close writes the index region and the metadata block, rewrites the header
// with the resolved offsets and releases the file handle. Calling Close on
// an already-closed writer is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	indexStart := uint64(w.offset)
	for _, pos := range w.index {
		if err := w.writeUint64(pos); err != nil {
			return err
		}
	}

	metaStart := uint64(w.offset)
	meta := w.meta
	if meta == nil {
		meta = bson.D{}
	}
	data, err := EncodeDoc(meta)
	if err != nil {
		return err
	}
	if err := w.writeUint64(uint64(len(data))); err != nil {
		return err
	}
	if err := w.writeRaw(data); err != nil {
		return err
	}

	if err := w.w.Flush(); err != nil {
		return err
	}
	if _, err := w.f.WriteAt(w.header(uint64(len(w.index)), indexStart, metaStart), 0); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

func (w *Writer) header(count, indexStart, metaStart uint64) []byte {
	h := w.tmp[:headerSize]
	copy(h[0:], magic)
	binary.LittleEndian.PutUint64(h[8:], count)
	binary.LittleEndian.PutUint64(h[16:], indexStart)
	binary.LittleEndian.PutUint64(h[24:], metaStart)
	return h
}

func (w *Writer) writeUint64(u uint64) error {
	binary.LittleEndian.PutUint64(w.tmp[:uint64Size], u)
	return w.writeRaw(w.tmp[:uint64Size])
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}
