package store

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// Compressor ids understood by the zarr reader and writer.
const (
	CompressorNone  = ""
	CompressorZlib  = "zlib"
	CompressorGzip  = "gzip"
	CompressorZstd  = "zstd"
	CompressorBlosc = "blosc"
)

// compressorConfig mirrors the numcodecs JSON object in .zarray.
type compressorConfig struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`

	// Blosc only. Chunks carry their own header, so reading ignores these.
	CName     string `json:"cname,omitempty"`
	CLevel    *int   `json:"clevel,omitempty"`
	Shuffle   *int   `json:"shuffle,omitempty"`
	BlockSize *int   `json:"blocksize,omitempty"`
}

// newCompressorConfig builds the .zarray entry for opts.
func newCompressorConfig(opts WriteOptions) *compressorConfig {
	if opts.Compressor == CompressorNone {
		return nil
	}
	cfg := &compressorConfig{ID: opts.Compressor, Level: opts.Level}
	if opts.Compressor == CompressorBlosc {
		level, shuffle, blocksize := opts.Level, 1, 0
		if level == 0 {
			level = 5
		}
		cname := opts.BloscCodec
		if cname == "" {
			cname = "lz4"
		}
		*cfg = compressorConfig{ID: CompressorBlosc, CName: cname, CLevel: &level, Shuffle: &shuffle, BlockSize: &blocksize}
	}
	return cfg
}

var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderErr  error
)

func sharedZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil)
	})
	return zstdDecoder, zstdDecoderErr
}

// decompress returns the raw chunk bytes for data stored with codec id.
func decompress(id string, data []byte) ([]byte, error) {
	switch id {
	case CompressorNone:
		return data, nil
	case CompressorZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressorGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressorZstd:
		d, err := sharedZstdDecoder()
		if err != nil {
			return nil, err
		}
		return d.DecodeAll(data, nil)
	case CompressorBlosc:
		return decodeBlosc(data)
	}
	return nil, apperrors.New(apperrors.ErrCodeUnsupported, "compressor %q not supported (want zlib, gzip, zstd or blosc)", id)
}

// compress encodes raw chunk bytes with the codec of cfg. typesize is the
// element size, used by blosc's shuffle.
func compress(cfg *compressorConfig, typesize int, raw []byte) ([]byte, error) {
	if cfg == nil {
		return raw, nil
	}
	var buf bytes.Buffer
	switch cfg.ID {
	case CompressorNone:
		return raw, nil
	case CompressorZlib:
		return compressZlib(cfg.Level, raw)
	case CompressorGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressorZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CompressorBlosc:
		opts := bloscOptions{codec: cfg.CName, shuffle: true}
		if cfg.CLevel != nil {
			opts.level = *cfg.CLevel
		}
		if cfg.Shuffle != nil {
			opts.shuffle = *cfg.Shuffle != 0
		}
		return encodeBlosc(raw, typesize, opts)
	}
	return nil, apperrors.New(apperrors.ErrCodeUnsupported, "compressor %q not supported (want zlib, gzip, zstd or blosc)", cfg.ID)
}

func compressZlib(level int, raw []byte) ([]byte, error) {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
