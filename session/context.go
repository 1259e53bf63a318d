package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/lodeworks/lodestone/protocol"
)

// Context is the scratch state one worker reuses across read cycles: the
// read buffer frames are decoded from, the buffer compressed payloads
// inflate into, and the inflater itself. A Context belongs to exactly one
// worker and must never serve two connections concurrently.
type Context struct {
	ReadBuffer *protocol.Buffer

	scratch  *protocol.Buffer
	src      bytes.Reader
	inflater io.ReadCloser
}

// NewContext creates scratch state with the read and decompression buffer
// capacities passed.
func NewContext(readSize, scratchSize int) *Context {
	return &Context{
		ReadBuffer: protocol.NewBuffer(readSize),
		scratch:    protocol.NewBuffer(scratchSize),
	}
}

// inflate decompresses a zlib stream into the scratch buffer and primes it
// as a readable window of exactly want bytes.
func (ctx *Context) inflate(compressed []byte, want int) (*protocol.Buffer, error) {
	if want <= 0 || want > ctx.scratch.Cap() {
		return nil, fmt.Errorf("declared size %v outside scratch capacity %v", want, ctx.scratch.Cap())
	}

	ctx.src.Reset(compressed)
	if ctx.inflater == nil {
		inflater, err := zlib.NewReader(&ctx.src)
		if err != nil {
			return nil, err
		}
		ctx.inflater = inflater
	} else if err := ctx.inflater.(zlib.Resetter).Reset(&ctx.src, nil); err != nil {
		return nil, err
	}

	ctx.scratch.Reset()
	if _, err := io.ReadFull(ctx.inflater, ctx.scratch.Writable()[:want]); err != nil {
		return nil, err
	}

	ctx.scratch.Advance(want)
	return ctx.scratch, nil
}
