package chunk

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultSize is the canonical fixed chunk size (256 KiB).
const DefaultSize = 262144

// ErrInvalidInput is returned for a non-positive chunk size or a negative length.
var ErrInvalidInput = errors.New("invalid chunker input")

// Range is a half-open byte range [Offset, Offset+Length) of the input.
type Range struct {
	Index  int
	Offset int64
	Length int64
}

// Chunker splits a random-access input into fixed-size ranges.
// Boundaries depend only on the input length, never on its content.
// A zero-length input yields zero chunks.
type Chunker struct {
	r         io.ReaderAt
	size      int64
	chunkSize int64
}

// NewChunker creates a chunker over the first size bytes of r.
func NewChunker(r io.ReaderAt, size int64, chunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", chunkSize, ErrInvalidInput)
	}
	if size < 0 {
		return nil, fmt.Errorf("input size %d: %w", size, ErrInvalidInput)
	}
	return &Chunker{r: r, size: size, chunkSize: int64(chunkSize)}, nil
}

// Count returns ceil(size / chunkSize).
func (c *Chunker) Count() int {
	return int((c.size + c.chunkSize - 1) / c.chunkSize)
}

// Size returns the total input length.
func (c *Chunker) Size() int64 {
	return c.size
}

// Range returns the i-th chunk range.
func (c *Chunker) Range(i int) Range {
	off := int64(i) * c.chunkSize
	return Range{Index: i, Offset: off, Length: min(c.chunkSize, c.size-off)}
}

// All yields every chunk range in order. Each call starts over from the
// first chunk, so the sequence can be consumed more than once.
func (c *Chunker) All() iter.Seq2[int, Range] {
	return func(yield func(int, Range) bool) {
		n := c.Count()
		for i := 0; i < n; i++ {
			if !yield(i, c.Range(i)) {
				return
			}
		}
	}
}

// Read loads the bytes of a range.
func (c *Chunker) Read(rg Range) ([]byte, error) {
	buf := make([]byte, rg.Length)
	n, err := c.r.ReadAt(buf, rg.Offset)
	if int64(n) == rg.Length {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("reading chunk %d: %w", rg.Index, err)
}
