package protocol

import (
	"bytes"
	"errors"
)

// maxVarintBytes is the longest valid encoding of a 32-bit value.
const maxVarintBytes = 5

var ErrVarintTooLarge = errors.New("varint exceeds 5 bytes")

// ReadVarint decodes a base-128 variable-length integer from the buffer's
// window. It fails with ErrUnderflow when the window ends mid-encoding and
// with ErrVarintTooLarge when no terminating byte appears within the maximum
// length; in both cases the read position is left where the failure occurred.
func (b *Buffer) ReadVarint() (int32, error) {
	var x uint32
	for i := 0; i < maxVarintBytes; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}

		x |= uint32(c&0x7f) << (i * 7)
		if c&0x80 == 0 {
			return int32(x), nil
		}
	}
	return 0, ErrVarintTooLarge
}

// WriteVarint appends the varint encoding of v to buf. Every int32 is
// representable, so there is no error path.
func WriteVarint(buf *bytes.Buffer, v int32) {
	x := uint32(v)
	for x >= 0x80 {
		buf.WriteByte(byte(x) | 0x80)
		x >>= 7
	}
	buf.WriteByte(byte(x))
}

// VarintSize returns the number of bytes WriteVarint emits for v.
func VarintSize(v int32) int {
	n := 1
	for x := uint32(v); x >= 0x80; x >>= 7 {
		n++
	}
	return n
}
