// Package compress frames segment bytes into independently compressed
// blocks for archiving.
//
// A stream starts with one codec byte followed by blocks of the form
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// A CompressedSize of 0 marks a block stored as is, which is used whenever
// compression does not save at least a tenth of the block.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/partstore/internal/conv"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a block compression algorithm.
type Codec uint8

const (
	None Codec = 0
	// LZ4 is fast and suits segments that are restored often.
	LZ4 Codec = 1
	// Zstd compresses better and suits cold archives.
	Zstd Codec = 2
)

// DefaultBlockSize is the uncompressed size of a full block.
const DefaultBlockSize = 256 * 1024

const (
	headerSize   = 8
	maxBlockSize = 64 * 1024 * 1024
)

var (
	// ErrCorrupt is returned for streams that cannot be decoded.
	ErrCorrupt = errors.New("compress: corrupt stream")
	// ErrUnknownCodec is returned for codec bytes this package does not know.
	ErrUnknownCodec = errors.New("compress: unknown codec")
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec is the inverse of Codec.String. The empty string means None.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Extension returns the file suffix used for blobs written with c.
func (c Codec) Extension() string {
	switch c {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// compressBlock appends a framed block holding data to dst.
func compressBlock(dst, data []byte, c Codec) ([]byte, error) {
	var compressed []byte
	switch c {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case Zstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	size, err := conv.IntToUint32(len(data))
	if err != nil {
		return nil, err
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], size)
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		dst = append(dst, hdr[:]...)
		return append(dst, data...), nil
	}
	csize, err := conv.IntToUint32(len(compressed))
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(hdr[4:], csize)
	dst = append(dst, hdr[:]...)
	return append(dst, compressed...), nil
}

func decompressBlock(dst, src []byte, size int, c Codec) ([]byte, error) {
	switch c {
	case LZ4:
		out := dst[:size]
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(src, dst[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: compressed block in %s stream", ErrCorrupt, c)
	}
}

// Writer compresses everything written to it block by block.
// Close must be called to emit the last block.
type Writer struct {
	w         io.Writer
	codec     Codec
	blockSize int
	buf       []byte
	frame     []byte
	written   int64
	started   bool
}

// NewWriter returns a Writer using codec c. A blockSize of 0 or less
// selects DefaultBlockSize; sizes above 64 MiB are clamped.
func NewWriter(w io.Writer, c Codec, blockSize int) *Writer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	blockSize = min(blockSize, maxBlockSize)
	return &Writer{
		w:         w,
		codec:     c,
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
	}
}

func (cw *Writer) start() error {
	if cw.started {
		return nil
	}
	cw.started = true
	n, err := cw.w.Write([]byte{byte(cw.codec)})
	cw.written += int64(n)
	return err
}

// Write buffers p and emits every block it completes.
func (cw *Writer) Write(p []byte) (int, error) {
	if err := cw.start(); err != nil {
		return 0, err
	}
	total := 0
	for len(p) > 0 {
		n := min(cw.blockSize-len(cw.buf), len(p))
		cw.buf = append(cw.buf, p[:n]...)
		total += n
		p = p[n:]
		if len(cw.buf) == cw.blockSize {
			if err := cw.flushBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (cw *Writer) flushBlock() error {
	if len(cw.buf) == 0 {
		return nil
	}
	frame, err := compressBlock(cw.frame[:0], cw.buf, cw.codec)
	if err != nil {
		return err
	}
	cw.frame = frame
	n, err := cw.w.Write(frame)
	cw.written += int64(n)
	if err != nil {
		return err
	}
	cw.buf = cw.buf[:0]
	return nil
}

// Close emits the buffered tail. It does not close the underlying writer.
func (cw *Writer) Close() error {
	if err := cw.start(); err != nil {
		return err
	}
	return cw.flushBlock()
}

// Written returns the number of encoded bytes emitted so far.
func (cw *Writer) Written() int64 { return cw.written }

// Reader decodes a stream produced by Writer.
type Reader struct {
	r       io.Reader
	codec   Codec
	started bool
	hdr     [headerSize]byte
	src     []byte
	block   []byte
	pending []byte
}

// NewReader returns a Reader over r. The codec is read from the stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Codec returns the codec of the stream. It is None until the first Read.
func (cr *Reader) Codec() Codec { return cr.codec }

func (cr *Reader) Read(p []byte) (int, error) {
	if !cr.started {
		var b [1]byte
		if _, err := io.ReadFull(cr.r, b[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: empty stream", ErrCorrupt)
			}
			return 0, err
		}
		cr.codec = Codec(b[0])
		if cr.codec > Zstd {
			return 0, fmt.Errorf("%w: %d", ErrUnknownCodec, b[0])
		}
		cr.started = true
	}

	for len(cr.pending) == 0 {
		if err := cr.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, cr.pending)
	cr.pending = cr.pending[n:]
	return n, nil
}

func (cr *Reader) next() error {
	if _, err := io.ReadFull(cr.r, cr.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated block header", ErrCorrupt)
		}
		return err
	}

	size := binary.LittleEndian.Uint32(cr.hdr[0:])
	csize := binary.LittleEndian.Uint32(cr.hdr[4:])
	if size > maxBlockSize || csize > maxBlockSize {
		return fmt.Errorf("%w: block of %d bytes", ErrCorrupt, max(size, csize))
	}

	if cap(cr.block) < int(size) {
		cr.block = make([]byte, size)
	}
	if csize == 0 {
		block := cr.block[:size]
		if _, err := io.ReadFull(cr.r, block); err != nil {
			return fmt.Errorf("%w: truncated block: %v", ErrCorrupt, err)
		}
		cr.pending = block
		return nil
	}

	if cap(cr.src) < int(csize) {
		cr.src = make([]byte, csize)
	}
	src := cr.src[:csize]
	if _, err := io.ReadFull(cr.r, src); err != nil {
		return fmt.Errorf("%w: truncated block: %v", ErrCorrupt, err)
	}
	block, err := decompressBlock(cr.block[:cap(cr.block)], src, int(size), cr.codec)
	if err != nil {
		return err
	}
	cr.pending = block
	return nil
}

// Encode compresses data into a complete stream.
func Encode(data []byte, c Codec) ([]byte, error) {
	out := []byte{byte(c)}
	for len(data) > 0 {
		n := min(DefaultBlockSize, len(data))
		var err error
		if out, err = compressBlock(out, data[:n], c); err != nil {
			return nil, err
		}
		data = data[n:]
	}
	return out, nil
}

// Decode decompresses a complete stream.
func Decode(stream []byte) ([]byte, error) {
	r := NewReader(bytes.NewReader(stream))
	return io.ReadAll(r)
}
