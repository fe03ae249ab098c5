// Package codec implements the fixed-layout binary encoding shared with the
// signer service.
//
// Integers are little-endian, u128 is 16 bytes, fixed arrays are raw bytes,
// and variable-length strings and vectors are prefixed with a compact length.
// Options are a 0x00/0x01 tag followed by the value when present.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// Decoding errors.
var (
	ErrShortBuffer   = errors.New("codec: unexpected end of input")
	ErrTrailingBytes = errors.New("codec: trailing bytes after value")
	ErrOverflow      = errors.New("codec: value overflows uint64")
	ErrBadOptionTag  = errors.New("codec: invalid option tag")
)

// maxPrealloc caps slice preallocation driven by untrusted length prefixes.
const maxPrealloc = 1 << 16

// Encoder appends encoded values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given capacity hint.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// U8 appends a single byte.
func (e *Encoder) U8(v uint8) {
	e.buf = append(e.buf, v)
}

// U32 appends a little-endian uint32.
func (e *Encoder) U32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// U64 appends a little-endian uint64.
func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// U128 appends v as a 16-byte little-endian integer.
func (e *Encoder) U128(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, 0)
}

// Fixed appends raw bytes with no length prefix.
func (e *Encoder) Fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// Compact appends a compact-encoded unsigned integer.
func (e *Encoder) Compact(v uint64) {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2))
	case v < 1<<14:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v<<2)|0b01)
	case v < 1<<30:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v<<2)|0b10)
	default:
		n := (bits.Len64(v) + 7) / 8
		if n < 4 {
			n = 4
		}
		e.buf = append(e.buf, byte((n-4)<<2)|0b11)
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(v>>(8*i)))
		}
	}
}

// VarBytes appends a compact length followed by b.
func (e *Encoder) VarBytes(b []byte) {
	e.Compact(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// String appends a compact length followed by the UTF-8 bytes of s.
func (e *Encoder) String(s string) {
	e.Compact(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// Bool appends 0x01 for true and 0x00 for false.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// Decoder reads encoded values from a byte slice. The first error is sticky:
// once a read fails every later read returns zero values and Err reports it.
type Decoder struct {
	data []byte
	off  int
	err  error
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// Finish returns the sticky error, or ErrTrailingBytes if input remains.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(d.data)-d.off)
	}
	return nil
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.fail(fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, d.Remaining()))
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

// U8 reads a single byte.
func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U32 reads a little-endian uint32.
func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// U128 reads a 16-byte little-endian integer that must fit in 64 bits.
func (d *Decoder) U128() uint64 {
	b := d.take(16)
	if b == nil {
		return 0
	}
	if binary.LittleEndian.Uint64(b[8:]) != 0 {
		d.fail(ErrOverflow)
		return 0
	}
	return binary.LittleEndian.Uint64(b[:8])
}

// Fixed copies len(dst) raw bytes into dst.
func (d *Decoder) Fixed(dst []byte) {
	b := d.take(len(dst))
	if b == nil {
		return
	}
	copy(dst, b)
}

// Compact reads a compact-encoded unsigned integer.
func (d *Decoder) Compact() uint64 {
	first := d.take(1)
	if first == nil {
		return 0
	}
	switch first[0] & 0b11 {
	case 0b00:
		return uint64(first[0] >> 2)
	case 0b01:
		rest := d.take(1)
		if rest == nil {
			return 0
		}
		return uint64(binary.LittleEndian.Uint16([]byte{first[0], rest[0]}) >> 2)
	case 0b10:
		rest := d.take(3)
		if rest == nil {
			return 0
		}
		return uint64(binary.LittleEndian.Uint32([]byte{first[0], rest[0], rest[1], rest[2]}) >> 2)
	default:
		n := int(first[0]>>2) + 4
		if n > 8 {
			d.fail(ErrOverflow)
			return 0
		}
		b := d.take(n)
		if b == nil {
			return 0
		}
		var v uint64
		for i := n - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
}

// Len reads a compact length and checks it against the remaining input,
// assuming every element occupies at least minElemSize bytes.
func (d *Decoder) Len(minElemSize int) int {
	n := d.Compact()
	if d.err != nil {
		return 0
	}
	if minElemSize < 1 {
		minElemSize = 1
	}
	if n > uint64(d.Remaining()/minElemSize) {
		d.fail(fmt.Errorf("%w: length %d exceeds input", ErrShortBuffer, n))
		return 0
	}
	return int(n)
}

// Prealloc bounds a slice capacity derived from a decoded length.
func Prealloc(n int) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

// VarBytes reads a compact length followed by that many bytes.
func (d *Decoder) VarBytes() []byte {
	n := d.Len(1)
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// String reads a compact-length-prefixed string.
func (d *Decoder) String() string {
	n := d.Len(1)
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Bool reads a 0x00/0x01 byte.
func (d *Decoder) Bool() bool {
	switch d.U8() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail(ErrBadOptionTag)
		return false
	}
}
