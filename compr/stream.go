// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package compr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// magic begins every record stream
var magic = []byte("EQJ\x01")

const (
	// DefaultBlockSize is the block size
	// used when NewWriter is passed zero.
	DefaultBlockSize = 256 * 1024
	// MaxBlockSize is the largest
	// decompressed block size accepted.
	MaxBlockSize = 64 * 1024 * 1024
)

// ErrCorrupt is returned from a Reader
// when the stream is malformed.
var ErrCorrupt = errors.New("compr: corrupt record stream")

// Writer writes (key, value) records into
// a stream of compressed blocks.
//
// The stream begins with a header naming
// the compression algorithm. Each block is
// the uvarint compressed size, the uvarint
// decompressed size, and the compressed bytes.
// Within a block, each record is a uvarint
// key length, the key, a uvarint value length,
// and the value. Records never straddle blocks.
type Writer struct {
	w     io.Writer
	comp  Compressor
	block int

	buf, out []byte
	err      error

	// Records and Blocks count what
	// has been written so far.
	Records, Blocks int64
}

// NewWriter writes the stream header to w and
// returns a Writer that compresses blocks of
// approximately blockSize bytes with the named
// algorithm (see Compression).
func NewWriter(w io.Writer, algo string, blockSize int) (*Writer, error) {
	comp := Compression(algo)
	if comp == nil {
		return nil, fmt.Errorf("compr: unknown compression algorithm %q", algo)
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize > MaxBlockSize {
		blockSize = MaxBlockSize
	}
	name := comp.Name()
	hdr := make([]byte, 0, len(magic)+1+len(name))
	hdr = append(hdr, magic...)
	hdr = append(hdr, byte(len(name)))
	hdr = append(hdr, name...)
	if _, err := w.Write(hdr); err != nil {
		return nil, err
	}
	return &Writer{w: w, comp: comp, block: blockSize}, nil
}

// Emit appends one record to the stream.
// A Writer can be used as a join.Emitter.
func (w *Writer) Emit(key, value []byte) error {
	if w.err != nil {
		return w.err
	}
	size := 2*binary.MaxVarintLen64 + len(key) + len(value)
	if size > MaxBlockSize {
		return fmt.Errorf("compr: record of %d bytes exceeds the maximum block size", size)
	}
	if len(w.buf) > 0 && len(w.buf)+size > w.block {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	w.buf = appendUvarint(w.buf, uint64(len(key)))
	w.buf = append(w.buf, key...)
	w.buf = appendUvarint(w.buf, uint64(len(value)))
	w.buf = append(w.buf, value...)
	w.Records++
	return nil
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// Flush compresses and writes
// any buffered records.
func (w *Writer) Flush() error {
	if w.err != nil || len(w.buf) == 0 {
		return w.err
	}
	w.out = w.out[:0]
	w.out = append(w.out, make([]byte, 2*binary.MaxVarintLen64)...)
	w.out = w.comp.Compress(w.buf, w.out)
	body := len(w.out) - 2*binary.MaxVarintLen64
	// write the sizes immediately before the body
	var sizes [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(sizes[:], uint64(body))
	n += binary.PutUvarint(sizes[n:], uint64(len(w.buf)))
	start := 2*binary.MaxVarintLen64 - n
	copy(w.out[start:], sizes[:n])
	if _, err := w.w.Write(w.out[start:]); err != nil {
		w.err = err
		return err
	}
	w.buf = w.buf[:0]
	w.Blocks++
	return nil
}

// Close flushes the Writer.
// It does not close the underlying io.Writer.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.err = errors.New("compr: write to closed Writer")
	return nil
}

// Reader reads a stream produced by a Writer.
type Reader struct {
	r      *bufio.Reader
	decomp Decompressor
	algo   string

	src, block []byte
	rest       []byte
}

// NewReader reads the stream header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("compr: reading header: %w", err)
	}
	if !bytes.Equal(hdr[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic %x", ErrCorrupt, hdr[:len(magic)])
	}
	name := make([]byte, hdr[len(magic)])
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, fmt.Errorf("compr: reading header: %w", err)
	}
	dec := Decompression(string(name))
	if dec == nil {
		return nil, fmt.Errorf("compr: unknown compression algorithm %q", name)
	}
	return &Reader{r: br, decomp: dec, algo: string(name)}, nil
}

// Algo returns the name of the
// stream's compression algorithm.
func (r *Reader) Algo() string { return r.algo }

func (r *Reader) readBlock() error {
	csize, err := binary.ReadUvarint(r.r)
	if err != nil {
		// a clean end of stream is io.EOF
		// at a block boundary
		if err == io.ErrUnexpectedEOF {
			err = fmt.Errorf("%w: truncated block header", ErrCorrupt)
		}
		return err
	}
	dsize, err := binary.ReadUvarint(r.r)
	if err != nil {
		return fmt.Errorf("%w: truncated block header", ErrCorrupt)
	}
	if dsize == 0 || dsize > MaxBlockSize || csize > MaxBlockSize+MaxBlockSize/8 {
		return fmt.Errorf("%w: block sizes %d/%d", ErrCorrupt, csize, dsize)
	}
	if cap(r.src) < int(csize) {
		r.src = make([]byte, csize)
	}
	r.src = r.src[:csize]
	if _, err := io.ReadFull(r.r, r.src); err != nil {
		return fmt.Errorf("%w: truncated block: %s", ErrCorrupt, err)
	}
	if cap(r.block) < int(dsize) {
		r.block = make([]byte, dsize)
	}
	r.block = r.block[:dsize]
	if err := r.decomp.Decompress(r.src, r.block); err != nil {
		return fmt.Errorf("%w: %s", ErrCorrupt, err)
	}
	r.rest = r.block
	return nil
}

func (r *Reader) field() ([]byte, error) {
	n, k := binary.Uvarint(r.rest)
	if k <= 0 || n > uint64(len(r.rest)-k) {
		return nil, fmt.Errorf("%w: bad record length", ErrCorrupt)
	}
	f := r.rest[k : k+int(n) : k+int(n)]
	r.rest = r.rest[k+int(n):]
	return f, nil
}

// Next returns the next record, or io.EOF
// at the end of the stream. The returned
// slices are only valid until the next call.
func (r *Reader) Next() (key, value []byte, err error) {
	if len(r.rest) == 0 {
		if err := r.readBlock(); err != nil {
			return nil, nil, err
		}
	}
	key, err = r.field()
	if err != nil {
		return nil, nil, err
	}
	value, err = r.field()
	if err != nil {
		return nil, nil, err
	}
	return key, value, nil
}
