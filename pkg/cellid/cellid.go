// Package cellid renders numeric cell ids in the Xenium cell barcode style.
//
// A cell id is printed as eight zero-padded lowercase hex digits, then every
// digit d is replaced by the letter 'a'+d, so 0 becomes 'a' and 15 becomes
// 'p'. The dataset suffix is appended after a dash:
//
//	cellid.Encode(0)             // "aaaaaaaa"
//	cellid.DisplayName(0, 5)     // "aaaaaaaa-5"
//	cellid.Encode(0xdeadbeef)    // "noknloop"
//
// The mapping is a bijection between uint32 and eight-letter strings over
// a..p, so [Decode] recovers the id exactly.
package cellid

import (
	"strconv"
	"strings"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// Length is the number of characters in an encoded cell id.
const Length = 8

// Encode returns the eight-letter code for id.
func Encode(id uint32) string {
	var buf [Length]byte
	for i := Length - 1; i >= 0; i-- {
		buf[i] = 'a' + byte(id&0xf)
		id >>= 4
	}
	return string(buf[:])
}

// DisplayName returns the code for id followed by "-" and the decimal minor id.
func DisplayName(id, minor uint32) string {
	return Encode(id) + "-" + strconv.FormatUint(uint64(minor), 10)
}

// Decode is the inverse of [Encode].
func Decode(code string) (uint32, error) {
	if len(code) != Length {
		return 0, apperrors.New(apperrors.ErrCodeInvalidInput, "cell code %q must have %d characters", code, Length)
	}
	var id uint32
	for i := 0; i < Length; i++ {
		c := code[i]
		if c < 'a' || c > 'p' {
			return 0, apperrors.New(apperrors.ErrCodeInvalidInput, "cell code %q: character %q outside a-p", code, c)
		}
		id = id<<4 | uint32(c-'a')
	}
	return id, nil
}

// ParseDisplayName splits a display name produced by [DisplayName] back into
// its cell id and minor id.
func ParseDisplayName(name string) (id, minor uint32, err error) {
	code, suffix, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, apperrors.New(apperrors.ErrCodeInvalidInput, "display name %q has no minor id", name)
	}
	if id, err = Decode(code); err != nil {
		return 0, 0, err
	}
	m, perr := strconv.ParseUint(suffix, 10, 32)
	if perr != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrCodeInvalidInput, perr, "display name %q: bad minor id", name)
	}
	return id, uint32(m), nil
}
