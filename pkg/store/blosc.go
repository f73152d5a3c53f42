package store

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// Blosc1 chunk layout, as written by numcodecs.Blosc:
//
//	header   16 bytes: version, versionlz, flags, typesize,
//	         nbytes, blocksize, ctbytes (uint32 LE)
//	bstarts  one uint32 offset per block
//	blocks   per split: int32 compressed size, then the stream
//
// A split whose compressed size equals its raw size is stored raw.
const (
	bloscHeaderSize    = 16
	bloscFormatVersion = 2
	bloscMaxSplits     = 16
	bloscMinBufferSize = 128
	bloscMaxDistance   = 8191

	// DefaultBloscBlockSize bounds the blocks written by WriteZarr.
	DefaultBloscBlockSize = 1 << 16
)

// Header flag bits. Bits 5-7 hold the inner codec.
const (
	bloscShuffle    = 0x01
	bloscMemcpyed   = 0x02
	bloscBitShuffle = 0x04
	bloscDontSplit  = 0x10
)

// Inner codec ids.
const (
	bloscBloscLZ = iota
	bloscLZ4
	bloscSnappy
	bloscZlib
	bloscZstd
)

var bloscCodecs = map[string]int{
	"blosclz": bloscBloscLZ,
	"lz4":     bloscLZ4,
	"lz4hc":   bloscLZ4,
	"snappy":  bloscSnappy,
	"zlib":    bloscZlib,
	"zstd":    bloscZstd,
}

type bloscHeader struct {
	flags     byte
	typesize  int
	nbytes    int
	blocksize int
	ctbytes   int
}

func (h bloscHeader) codec() int { return int(h.flags >> 5) }

func (h bloscHeader) shuffled() bool { return h.flags&bloscShuffle != 0 && h.typesize > 1 }

func (h bloscHeader) nblocks() int { return (h.nbytes + h.blocksize - 1) / h.blocksize }

// splits returns the number of streams a block of bsize bytes is stored in.
func (h bloscHeader) splits(bsize int, leftover bool) int {
	if h.flags&bloscDontSplit == 0 && h.typesize <= bloscMaxSplits &&
		bsize/h.typesize >= bloscMinBufferSize && !leftover {
		return h.typesize
	}
	return 1
}

func (h bloscHeader) put(b []byte) {
	b[0] = bloscFormatVersion
	b[1] = 1
	b[2] = h.flags
	b[3] = byte(h.typesize)
	binary.LittleEndian.PutUint32(b[4:], uint32(h.nbytes))
	binary.LittleEndian.PutUint32(b[8:], uint32(h.blocksize))
	binary.LittleEndian.PutUint32(b[12:], uint32(h.ctbytes))
}

func corruptBlosc(format string, args ...any) error {
	return apperrors.New(apperrors.ErrCodeInvalidFormat, "blosc: "+format, args...)
}

func parseBloscHeader(data []byte) (bloscHeader, error) {
	if len(data) < bloscHeaderSize {
		return bloscHeader{}, corruptBlosc("chunk of %d bytes is shorter than the header", len(data))
	}
	if v := data[0]; v == 0 || v > bloscFormatVersion {
		return bloscHeader{}, apperrors.New(apperrors.ErrCodeUnsupported, "blosc format version %d not supported", v)
	}
	h := bloscHeader{
		flags:     data[2],
		typesize:  int(data[3]),
		nbytes:    int(binary.LittleEndian.Uint32(data[4:])),
		blocksize: int(binary.LittleEndian.Uint32(data[8:])),
		ctbytes:   int(binary.LittleEndian.Uint32(data[12:])),
	}
	switch {
	case h.ctbytes < bloscHeaderSize || h.ctbytes > len(data):
		return h, corruptBlosc("compressed size %d, chunk has %d bytes", h.ctbytes, len(data))
	case h.typesize == 0:
		return h, corruptBlosc("zero type size")
	case h.nbytes > 0 && h.blocksize <= 0:
		return h, corruptBlosc("zero block size")
	}
	return h, nil
}

// decodeBlosc returns the raw bytes of a blosc1 chunk.
func decodeBlosc(data []byte) ([]byte, error) {
	h, err := parseBloscHeader(data)
	if err != nil {
		return nil, err
	}
	data = data[:h.ctbytes]
	out := make([]byte, h.nbytes)
	if h.nbytes == 0 {
		return out, nil
	}
	if h.flags&bloscMemcpyed != 0 {
		if len(data)-bloscHeaderSize < h.nbytes {
			return nil, corruptBlosc("memcpyed chunk holds %d of %d bytes", len(data)-bloscHeaderSize, h.nbytes)
		}
		copy(out, data[bloscHeaderSize:])
		return out, nil
	}
	if h.flags&bloscBitShuffle != 0 {
		return nil, apperrors.New(apperrors.ErrCodeUnsupported, "blosc bitshuffle not supported")
	}
	if h.codec() > bloscZstd {
		return nil, apperrors.New(apperrors.ErrCodeUnsupported, "blosc codec %d not supported", h.codec())
	}

	nblocks := h.nblocks()
	if bloscHeaderSize+4*nblocks > len(data) {
		return nil, corruptBlosc("%d block offsets do not fit", nblocks)
	}
	var tmp []byte
	if h.shuffled() {
		tmp = make([]byte, h.blocksize)
	}
	for i := 0; i < nblocks; i++ {
		bsize, leftover := h.blocksize, false
		if rem := h.nbytes - i*h.blocksize; rem < bsize {
			bsize, leftover = rem, true
		}
		start := int(binary.LittleEndian.Uint32(data[bloscHeaderSize+4*i:]))
		dst := out[i*h.blocksize : i*h.blocksize+bsize]
		target := dst
		if tmp != nil {
			target = tmp[:bsize]
		}
		if err := h.decodeBlock(data, start, target, leftover); err != nil {
			return nil, err
		}
		if tmp != nil {
			unshuffle(h.typesize, target, dst)
		}
	}
	return out, nil
}

func (h bloscHeader) decodeBlock(data []byte, start int, dst []byte, leftover bool) error {
	nsplits := h.splits(len(dst), leftover)
	size := len(dst) / nsplits
	pos := start
	for j := 0; j < nsplits; j++ {
		if pos < bloscHeaderSize || pos+4 > len(data) {
			return corruptBlosc("split at offset %d out of range", pos)
		}
		cbytes := int(int32(binary.LittleEndian.Uint32(data[pos:])))
		pos += 4
		if cbytes < 0 || pos+cbytes > len(data) {
			return corruptBlosc("split of %d bytes at offset %d out of range", cbytes, pos)
		}
		src, out := data[pos:pos+cbytes], dst[j*size:(j+1)*size]
		pos += cbytes
		if cbytes == size {
			copy(out, src)
			continue
		}
		n, err := decodeBloscStream(h.codec(), src, out)
		if err != nil {
			return err
		}
		if n != size {
			return corruptBlosc("split decoded to %d bytes, want %d", n, size)
		}
	}
	return nil
}

func decodeBloscStream(codec int, src, dst []byte) (int, error) {
	switch codec {
	case bloscBloscLZ:
		return blosclzDecode(src, dst)
	case bloscLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return 0, corruptBlosc("lz4: %v", err)
		}
		return n, nil
	case bloscSnappy:
		b, err := snappy.Decode(nil, src)
		if err != nil {
			return 0, corruptBlosc("snappy: %v", err)
		}
		return copy(dst, b), checkLen(len(b), len(dst))
	case bloscZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return 0, corruptBlosc("zlib: %v", err)
		}
		defer r.Close()
		n, err := io.ReadFull(r, dst)
		if err != nil {
			return n, corruptBlosc("zlib: %v", err)
		}
		return n, nil
	default:
		d, err := sharedZstdDecoder()
		if err != nil {
			return 0, err
		}
		b, err := d.DecodeAll(src, make([]byte, 0, len(dst)))
		if err != nil {
			return 0, corruptBlosc("zstd: %v", err)
		}
		return copy(dst, b), checkLen(len(b), len(dst))
	}
}

func checkLen(got, want int) error {
	if got != want {
		return corruptBlosc("split decoded to %d bytes, want %d", got, want)
	}
	return nil
}

// blosclzDecode expands a BloscLZ stream into dst and returns the bytes
// written. A control byte below 32 starts a literal run of ctrl+1 bytes;
// anything else is a back reference whose length and distance spill into
// the following bytes.
func blosclzDecode(src, dst []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	ip, op := 1, 0
	ctrl := int(src[0] & 31)
	for {
		if ctrl < 32 {
			n := ctrl + 1
			if op+n > len(dst) || ip+n > len(src) {
				return op, corruptBlosc("blosclz: literal run overflows")
			}
			copy(dst[op:], src[ip:ip+n])
			op += n
			ip += n
		} else {
			n := ctrl>>5 - 1
			ofs := (ctrl & 31) << 8
			if n == 6 {
				for {
					if ip+1 >= len(src) {
						return op, corruptBlosc("blosclz: truncated match length")
					}
					code := src[ip]
					ip++
					n += int(code)
					if code != 255 {
						break
					}
				}
			} else if ip+1 >= len(src) {
				return op, corruptBlosc("blosclz: truncated match")
			}
			code := int(src[ip])
			ip++
			n += 3
			dist := ofs + code + 1
			if code == 255 && ofs == 31<<8 {
				if ip+1 >= len(src) {
					return op, corruptBlosc("blosclz: truncated far match")
				}
				dist = int(src[ip])<<8 + int(src[ip+1]) + bloscMaxDistance + 1
				ip += 2
			}
			if op+n > len(dst) || dist > op {
				return op, corruptBlosc("blosclz: match out of range")
			}
			// Byte by byte: the source may overlap the bytes being written.
			for i := 0; i < n; i++ {
				dst[op+i] = dst[op-dist+i]
			}
			op += n
		}
		if ip >= len(src) {
			break
		}
		ctrl = int(src[ip])
		ip++
	}
	return op, nil
}

// unshuffle undoes the byte shuffle of one block: src holds every
// element's first byte, then every second byte, and so on. Trailing bytes
// that do not fill an element are stored as is.
func unshuffle(typesize int, src, dst []byte) {
	n := len(src) / typesize
	for i := 0; i < typesize; i++ {
		for j := 0; j < n; j++ {
			dst[j*typesize+i] = src[i*n+j]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}

func shuffle(typesize int, src, dst []byte) {
	n := len(src) / typesize
	for i := 0; i < typesize; i++ {
		for j := 0; j < n; j++ {
			dst[i*n+j] = src[j*typesize+i]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}

// bloscOptions controls encodeBlosc.
type bloscOptions struct {
	codec     string // lz4, snappy, zlib or zstd
	level     int
	shuffle   bool
	blocksize int
	noSplit   bool
}

// encodeBlosc writes raw as a blosc1 chunk. Chunks that do not compress
// are stored memcpyed.
func encodeBlosc(raw []byte, typesize int, opts bloscOptions) ([]byte, error) {
	if opts.codec == "" {
		opts.codec = "lz4"
	}
	codec, ok := bloscCodecs[opts.codec]
	if !ok || codec == bloscBloscLZ {
		return nil, apperrors.New(apperrors.ErrCodeUnsupported, "blosc codec %q not supported for writing (want lz4, snappy, zlib or zstd)", opts.codec)
	}
	typesize = min(max(typesize, 1), 255)

	blocksize := opts.blocksize
	if blocksize <= 0 {
		blocksize = DefaultBloscBlockSize
	}
	blocksize = min(blocksize, max(len(raw), 1))
	if blocksize > typesize {
		blocksize -= blocksize % typesize
	}

	h := bloscHeader{flags: byte(codec) << 5, typesize: typesize, nbytes: len(raw), blocksize: blocksize}
	if opts.shuffle && typesize > 1 {
		h.flags |= bloscShuffle
	}
	if opts.noSplit {
		h.flags |= bloscDontSplit
	}
	if len(raw) == 0 {
		return memcpyedBlosc(h, raw), nil
	}

	nblocks := h.nblocks()
	out := make([]byte, bloscHeaderSize+4*nblocks, bloscHeaderSize+4*nblocks+len(raw))
	var tmp []byte
	if h.shuffled() {
		tmp = make([]byte, blocksize)
	}
	for i := 0; i < nblocks; i++ {
		block := raw[i*blocksize : min((i+1)*blocksize, len(raw))]
		leftover := len(block) < blocksize
		binary.LittleEndian.PutUint32(out[bloscHeaderSize+4*i:], uint32(len(out)))
		if tmp != nil {
			shuffle(typesize, block, tmp[:len(block)])
			block = tmp[:len(block)]
		}
		nsplits := h.splits(len(block), leftover)
		size := len(block) / nsplits
		for j := 0; j < nsplits; j++ {
			split := block[j*size : (j+1)*size]
			enc, err := encodeBloscStream(codec, opts.level, split)
			if err != nil {
				return nil, err
			}
			if len(enc) == 0 || len(enc) >= len(split) {
				enc = split
			}
			out = binary.LittleEndian.AppendUint32(out, uint32(len(enc)))
			out = append(out, enc...)
		}
		if len(out) >= bloscHeaderSize+len(raw) {
			return memcpyedBlosc(h, raw), nil
		}
	}
	h.ctbytes = len(out)
	h.put(out)
	return out, nil
}

func memcpyedBlosc(h bloscHeader, raw []byte) []byte {
	h.flags |= bloscMemcpyed
	h.ctbytes = bloscHeaderSize + len(raw)
	out := make([]byte, h.ctbytes)
	h.put(out)
	copy(out[bloscHeaderSize:], raw)
	return out
}

func encodeBloscStream(codec, level int, src []byte) ([]byte, error) {
	switch codec {
	case bloscLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst, nil)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case bloscSnappy:
		return snappy.Encode(nil, src), nil
	case bloscZlib:
		return compressZlib(level, src)
	default:
		zl := zstd.SpeedDefault
		if level > 0 {
			zl = zstd.EncoderLevelFromZstd(level)
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zl))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	}
}
