package store

import (
	"encoding/binary"
	"math"
	"strconv"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// dtype is a parsed numpy-style type string such as "<f4" or "|u1".
type dtype struct {
	order binary.ByteOrder
	kind  byte // 'b', 'i', 'u' or 'f'
	size  int
}

func parseDType(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, apperrors.New(apperrors.ErrCodeUnsupported, "dtype %q not supported", s)
	}
	var dt dtype
	switch s[0] {
	case '<', '|':
		dt.order = binary.LittleEndian
	case '>':
		dt.order = binary.BigEndian
	default:
		return dtype{}, apperrors.New(apperrors.ErrCodeUnsupported, "dtype %q: unknown byte order", s)
	}
	dt.kind = s[1]
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, apperrors.New(apperrors.ErrCodeUnsupported, "dtype %q: bad item size", s)
	}
	dt.size = size

	ok := false
	switch dt.kind {
	case 'b':
		ok = size == 1
	case 'i', 'u':
		ok = size == 1 || size == 2 || size == 4 || size == 8
	case 'f':
		ok = size == 4 || size == 8
	}
	if !ok {
		return dtype{}, apperrors.New(apperrors.ErrCodeUnsupported, "dtype %q not supported", s)
	}
	return dt, nil
}

// decode reads one item from b.
func (dt dtype) decode(b []byte) float64 {
	switch dt.kind {
	case 'b':
		if b[0] != 0 {
			return 1
		}
		return 0
	case 'u':
		switch dt.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(dt.order.Uint16(b))
		case 4:
			return float64(dt.order.Uint32(b))
		default:
			return float64(dt.order.Uint64(b))
		}
	case 'i':
		switch dt.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(dt.order.Uint16(b)))
		case 4:
			return float64(int32(dt.order.Uint32(b)))
		default:
			return float64(int64(dt.order.Uint64(b)))
		}
	default:
		if dt.size == 4 {
			return float64(math.Float32frombits(dt.order.Uint32(b)))
		}
		return math.Float64frombits(dt.order.Uint64(b))
	}
}

// encode writes v into b.
func (dt dtype) encode(b []byte, v float64) {
	switch dt.kind {
	case 'b':
		b[0] = 0
		if v != 0 {
			b[0] = 1
		}
	case 'u':
		switch dt.size {
		case 1:
			b[0] = uint8(v)
		case 2:
			dt.order.PutUint16(b, uint16(v))
		case 4:
			dt.order.PutUint32(b, uint32(v))
		default:
			dt.order.PutUint64(b, uint64(v))
		}
	case 'i':
		switch dt.size {
		case 1:
			b[0] = uint8(int8(v))
		case 2:
			dt.order.PutUint16(b, uint16(int16(v)))
		case 4:
			dt.order.PutUint32(b, uint32(int32(v)))
		default:
			dt.order.PutUint64(b, uint64(int64(v)))
		}
	default:
		if dt.size == 4 {
			dt.order.PutUint32(b, math.Float32bits(float32(v)))
			return
		}
		dt.order.PutUint64(b, math.Float64bits(v))
	}
}
