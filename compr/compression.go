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

// Package compr wraps the third-party compression
// libraries used for join output streams and
// implements the framed record stream itself.
package compr

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses one block at a time.
type Compressor interface {
	// Name is the name of the compression algorithm.
	// It is recorded in stream headers and
	// accepted by Decompression.
	Name() string
	// Compress appends the compressed
	// contents of src to dst and returns
	// the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the inverse of a Compressor.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress decompresses src into dst,
	// which must be exactly the size of the
	// decompressed data.
	//
	// It must be safe to make multiple
	// calls to Decompress simultaneously
	// from different goroutines.
	Decompress(src, dst []byte) error
}

// Names lists the algorithms
// accepted by Compression.
var Names = []string{"zstd", "zstd-better", "s2", "lz4", "none"}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return "zstd" }

var zstdDecoder *zstd.Decoder

func init() {
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor zstd.Decoder

func (z *zstdDecompressor) Name() string { return "zstd" }

func (z *zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := (*zstd.Decoder)(z).DecodeAll(src, into)
	if err != nil {
		return err
	}
	return checkInPlace("zstd", ret, dst)
}

// checkInPlace verifies that a decoder
// filled dst exactly
func checkInPlace(algo string, ret, dst []byte) error {
	if len(ret) != len(dst) {
		return fmt.Errorf("%s decompress: expected %d bytes; got %d", algo, len(dst), len(ret))
	}
	if len(ret) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("%s decompress: output buffer realloc'd", algo)
	}
	return nil
}

type s2Compressor struct{}

func (s2Compressor) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(dst) == 0 {
		return got
	}
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) error {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("s2 decompress: expected %d bytes; got %d", len(dst), n)
	}
	ret, err := s2.Decode(dst, src)
	if err != nil {
		return err
	}
	return checkInPlace("s2", ret, dst)
}

func (s2Compressor) Name() string { return "s2" }

// lz4Compressor prefixes each block with
// a flag byte: lz4Raw for blocks that lz4
// cannot compress, lz4Block otherwise
type lz4Compressor struct{}

const (
	lz4Raw   = 0
	lz4Block = 1
)

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(src, dst []byte) []byte {
	start := len(dst)
	need := 1 + lz4.CompressBlockBound(len(src))
	if cap(dst)-start < need {
		grown := make([]byte, start, start+need)
		copy(grown, dst)
		dst = grown
	}
	body := dst[start+1 : start+need]
	n, err := lz4.CompressBlock(src, body, nil)
	if err != nil || n == 0 {
		// incompressible
		dst = append(dst[:start], lz4Raw)
		return append(dst, src...)
	}
	dst = dst[:start+1+n]
	dst[start] = lz4Block
	return dst
}

func (lz4Compressor) Decompress(src, dst []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("lz4 decompress: empty block")
	}
	switch src[0] {
	case lz4Raw:
		return noCompression{}.Decompress(src[1:], dst)
	case lz4Block:
		n, err := lz4.UncompressBlock(src[1:], dst)
		if err != nil {
			return err
		}
		if n != len(dst) {
			return fmt.Errorf("lz4 decompress: expected %d bytes; got %d", len(dst), n)
		}
		return nil
	default:
		return fmt.Errorf("lz4 decompress: unknown block flag %d", src[0])
	}
}

// noCompression stores blocks verbatim
type noCompression struct{}

func (noCompression) Name() string { return "none" }

func (noCompression) Compress(src, dst []byte) []byte { return append(dst, src...) }

func (noCompression) Decompress(src, dst []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("none decompress: expected %d bytes; got %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// Compression selects a compression algorithm by name.
// The returned Compressor's Name is the name of the
// Decompressor for its output, which is the same as
// name except that "zstd-better" produces "zstd".
// Compression returns nil for an unknown name.
func Compression(name string) Compressor {
	switch name {
	case "zstd-better":
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "zstd":
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	case "lz4":
		return lz4Compressor{}
	case "none", "":
		return noCompression{}
	default:
		return nil
	}
}

// Decompression returns the Decompressor for
// a Compressor name, or nil if name is unknown.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd":
		return (*zstdDecompressor)(zstdDecoder)
	case "s2":
		return s2Compressor{}
	case "lz4":
		return lz4Compressor{}
	case "none":
		return noCompression{}
	default:
		return nil
	}
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
