package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// countingU32 returns n little-endian uint32 values that repeat in runs.
func countingU32(n int) []byte {
	raw := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(i/3))
	}
	return raw
}

func TestBloscRoundTrip(t *testing.T) {
	// 1000 elements in 1024-byte blocks: three full blocks split into four
	// streams, then a leftover block.
	raw := countingU32(1000)
	for _, codec := range []string{"lz4", "snappy", "zlib", "zstd"} {
		for _, shuffled := range []bool{true, false} {
			for _, noSplit := range []bool{true, false} {
				name := fmt.Sprintf("%s/shuffle=%v/nosplit=%v", codec, shuffled, noSplit)
				t.Run(name, func(t *testing.T) {
					enc, err := encodeBlosc(raw, 4, bloscOptions{codec: codec, shuffle: shuffled, blocksize: 1024, noSplit: noSplit})
					if err != nil {
						t.Fatalf("encodeBlosc: %v", err)
					}
					h, err := parseBloscHeader(enc)
					if err != nil {
						t.Fatalf("header: %v", err)
					}
					if h.flags&bloscMemcpyed != 0 {
						t.Error("compressible chunk stored memcpyed")
					}
					if h.codec() != bloscCodecs[codec] || h.nblocks() != 4 || h.shuffled() != shuffled {
						t.Errorf("header = %+v", h)
					}
					got, err := decodeBlosc(enc)
					if err != nil {
						t.Fatalf("decodeBlosc: %v", err)
					}
					if !bytes.Equal(got, raw) {
						t.Error("decoded bytes differ from input")
					}
				})
			}
		}
	}
}

func TestBloscSplits(t *testing.T) {
	tests := []struct {
		name     string
		flags    byte
		typesize int
		bsize    int
		leftover bool
		want     int
	}{
		{"split", 0, 4, 1024, false, 4},
		{"dont split flag", bloscDontSplit, 4, 1024, false, 1},
		{"leftover block", 0, 4, 1024, true, 1},
		{"small block", 0, 4, 508, false, 1},
		{"wide type", 0, 32, 8192, false, 1},
	}
	for _, tt := range tests {
		h := bloscHeader{flags: tt.flags, typesize: tt.typesize}
		if got := h.splits(tt.bsize, tt.leftover); got != tt.want {
			t.Errorf("%s: splits = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestBloscMemcpyed(t *testing.T) {
	// Too short to compress.
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	enc, err := encodeBlosc(raw, 8, bloscOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if enc[2]&bloscMemcpyed == 0 || len(enc) != bloscHeaderSize+len(raw) {
		t.Fatalf("chunk = %v", enc)
	}
	got, err := decodeBlosc(enc)
	if err != nil || !bytes.Equal(got, raw) {
		t.Errorf("decodeBlosc = %v, %v", got, err)
	}

	empty, err := encodeBlosc(nil, 4, bloscOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := decodeBlosc(empty); err != nil || len(got) != 0 {
		t.Errorf("empty chunk = %v, %v", got, err)
	}
}

func TestBlosclzDecode(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		want string
	}{
		{"literals", []byte{2, 'a', 'b', 'c'}, "abc"},
		{"short match", []byte{2, 'a', 'b', 'c', 128, 2, 0, 'X'}, "abcabcabcX"},
		{"long run", []byte{0, 'z', 224, 2, 0, 0, '!'}, "zzzzzzzzzzzz!"},
	}
	for _, tt := range tests {
		dst := make([]byte, len(tt.want))
		n, err := blosclzDecode(tt.src, dst)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got := string(dst[:n]); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}

	bad := [][]byte{
		{0, 'a', 128, 5, 0, 'x'}, // reaches before the output
		{5, 'a', 'b'},            // literal past the input
		{0, 'a', 128},            // match without a distance
	}
	for _, src := range bad {
		if _, err := blosclzDecode(src, make([]byte, 16)); !apperrors.Is(err, apperrors.ErrCodeInvalidFormat) {
			t.Errorf("blosclzDecode(%v) err = %v, want INVALID_FORMAT", src, err)
		}
	}
}

// blosclzChunk wraps one BloscLZ stream in a single-block chunk.
func blosclzChunk(stream []byte, nbytes int) []byte {
	h := bloscHeader{flags: bloscDontSplit | bloscBloscLZ<<5, typesize: 1, nbytes: nbytes, blocksize: nbytes}
	out := make([]byte, bloscHeaderSize+4)
	binary.LittleEndian.PutUint32(out[bloscHeaderSize:], uint32(len(out)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(stream)))
	out = append(out, stream...)
	h.ctbytes = len(out)
	h.put(out)
	return out
}

func TestDecodeBloscBloscLZ(t *testing.T) {
	chunk := blosclzChunk([]byte{2, 'a', 'b', 'c', 128, 2, 0, 'X'}, 10)
	got, err := decompress(CompressorBlosc, chunk)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != "abcabcabcX" {
		t.Errorf("got %q", got)
	}

	// A stream that decodes short of the block is corrupt.
	short := blosclzChunk([]byte{2, 'a', 'b', 'c'}, 10)
	if _, err := decodeBlosc(short); !apperrors.Is(err, apperrors.ErrCodeInvalidFormat) {
		t.Errorf("short stream: got %v, want INVALID_FORMAT", err)
	}
}

func TestDecodeBloscErrors(t *testing.T) {
	valid := blosclzChunk([]byte{2, 'a', 'b', 'c'}, 3)
	with := func(edit func([]byte)) []byte {
		b := bytes.Clone(valid)
		edit(b)
		return b
	}
	tests := []struct {
		name string
		data []byte
		code apperrors.Code
	}{
		{"short header", valid[:10], apperrors.ErrCodeInvalidFormat},
		{"truncated", valid[:len(valid)-1], apperrors.ErrCodeInvalidFormat},
		{"zero type size", with(func(b []byte) { b[3] = 0 }), apperrors.ErrCodeInvalidFormat},
		{"block offset out of range", with(func(b []byte) { b[bloscHeaderSize] = 200 }), apperrors.ErrCodeInvalidFormat},
		{"blosc2 frame", with(func(b []byte) { b[0] = 3 }), apperrors.ErrCodeUnsupported},
		{"bitshuffle", with(func(b []byte) { b[2] |= bloscBitShuffle }), apperrors.ErrCodeUnsupported},
		{"unknown codec", with(func(b []byte) { b[2] = b[2]&0x1f | 6<<5 }), apperrors.ErrCodeUnsupported},
	}
	for _, tt := range tests {
		if _, err := decodeBlosc(tt.data); !apperrors.Is(err, tt.code) {
			t.Errorf("%s: got %v, want %s", tt.name, err, tt.code)
		}
	}

	if _, err := encodeBlosc([]byte{1}, 1, bloscOptions{codec: "blosclz"}); !apperrors.Is(err, apperrors.ErrCodeUnsupported) {
		t.Errorf("blosclz writer: got %v, want UNSUPPORTED", err)
	}
}

func TestShuffle(t *testing.T) {
	// Two 3-byte elements plus two trailing bytes.
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	shuffled := make([]byte, len(raw))
	shuffle(3, raw, shuffled)
	if want := []byte{1, 4, 2, 5, 3, 6, 7, 8}; !bytes.Equal(shuffled, want) {
		t.Errorf("shuffle = %v, want %v", shuffled, want)
	}
	back := make([]byte, len(raw))
	unshuffle(3, shuffled, back)
	if !bytes.Equal(back, raw) {
		t.Errorf("unshuffle = %v, want %v", back, raw)
	}
}
