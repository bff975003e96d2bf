package docset

import (
	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// magic identifies the current container format and version.
var magic = []byte("DOCSET71")

const (
	headerSize = 32 // magic + count + index offset + meta offset
	uint64Size = 8

	// noneValue marks an unresolved offset, both on disk (header offsets of
	// an unfinished container) and in memory (index entries not yet loaded).
	// It is never a legal file offset.
	noneValue = 1<<64 - 1

	// DefaultBlockSize is the number of index entries loaded per block.
	DefaultBlockSize = 512
	// DefaultReadBufferSize is the read buffer size in bytes.
	DefaultReadBufferSize = 1024 * 1024
	// DefaultWriteBufferSize is the write buffer size in bytes.
	DefaultWriteBufferSize = 8 * 1024 * 1024
)

// Recognisable failure conditions.
var (
	// ErrInvalidFormat is returned when a file does not carry the expected
	// magic byte sequence.
	ErrInvalidFormat = errors.New("docset: invalid format")
	// ErrIncomplete is returned when a container was never finalised and
	// its header offsets are still unresolved.
	ErrIncomplete = errors.New("docset: incomplete container")
	// ErrCorruptMeta is returned when the metadata document cannot be
	// decoded or lacks required fields.
	ErrCorruptMeta = errors.New("docset: corrupted metadata")
	// ErrRange is returned by ConcatSet.Read for out-of-range indices.
	ErrRange = errors.New("docset: index out of range")

	errClosed = errors.New("docset: is closed")
)

// Set is the read contract shared by Reader, LegacyReader and ConcatSet:
// an ordered collection of documents addressable by position.
type Set interface {
	// Len returns the number of documents.
	Len() int
	// Read returns the document at position i.
	Read(i int) (bson.D, error)
}

// Container is a Set backed by a single file.
type Container interface {
	Set
	// Meta returns the user metadata stored in the container.
	Meta() bson.D
	// Close releases the file handle. It is idempotent.
	Close() error
}

// Open opens a container file for reading. It attempts the current format
// first and transparently falls back to the legacy head-embedded layout when
// the file is recognisably not a (complete) current-format container. If both
// attempts fail, the legacy error is returned with the current-format error
// attached as a secondary cause. Any other failure propagates unmodified.
func Open(path string, o *ReaderOptions) (Container, error) {
	r, err := NewReader(path, o)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrInvalidFormat) && !errors.Is(err, ErrIncomplete) {
		return nil, err
	}

	lr, lerr := NewLegacyReader(path, o)
	if lerr != nil {
		return nil, errors.WithSecondaryError(lerr, err)
	}
	return lr, nil
}

// Create creates a new container file for writing. Containers are always
// written in the current format; the legacy layout is read-only.
func Create(path string, o *WriterOptions) (*Writer, error) {
	return NewWriter(path, o)
}
