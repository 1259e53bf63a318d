package protocol

import "errors"

var (
	ErrUnderflow  = errors.New("buffer underflow")
	ErrBufferFull = errors.New("buffer capacity exceeded")
)

// Buffer is a fixed-capacity byte window with an explicit read position and
// limit. Workers reuse one instance per read cycle and connections reuse one
// as the outbound tick buffer, so the backing array is allocated once and
// never grows.
type Buffer struct {
	data []byte
	pos  int
	lim  int
}

// NewBuffer creates a Buffer backed by a fresh array of the capacity passed.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Reset empties the buffer, making the full capacity writable again.
func (b *Buffer) Reset() {
	b.pos = 0
	b.lim = 0
}

// Pos returns the current read position.
func (b *Buffer) Pos() int {
	return b.pos
}

// SetPos moves the read position, used to roll back to a recorded offset or
// to skip to a known frame boundary.
func (b *Buffer) SetPos(pos int) {
	b.pos = pos
}

// Limit returns the end of the readable window.
func (b *Buffer) Limit() int {
	return b.lim
}

// SetLimit restricts or restores the end of the readable window. Restricting
// it to a frame boundary stops a malformed payload from reading past it.
func (b *Buffer) SetLimit(lim int) {
	b.lim = lim
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Remaining returns the number of unread bytes in the current window.
func (b *Buffer) Remaining() int {
	return b.lim - b.pos
}

// Free returns the writable space left before the buffer is full.
func (b *Buffer) Free() int {
	return len(b.data) - b.lim
}

// Bytes returns the unread window. The slice aliases the backing array and is
// only valid until the next Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[b.pos:b.lim]
}

// ReadByte consumes one byte from the window.
func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= b.lim {
		return 0, ErrUnderflow
	}
	c := b.data[b.pos]
	b.pos++
	return c, nil
}

// Append copies p to the end of the buffer. It fails with ErrBufferFull when
// p does not fit; the buffer is left untouched in that case.
func (b *Buffer) Append(p []byte) error {
	if len(p) > b.Free() {
		return ErrBufferFull
	}
	b.lim += copy(b.data[b.lim:], p)
	return nil
}

// Writable exposes the unwritten tail of the backing array so a socket read
// can fill it directly. Advance must be called afterwards with the number of
// bytes written.
func (b *Buffer) Writable() []byte {
	return b.data[b.lim:]
}

// Advance extends the readable window by n bytes previously written through
// Writable.
func (b *Buffer) Advance(n int) {
	b.lim += n
}
