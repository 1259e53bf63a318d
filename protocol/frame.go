package protocol

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
	"github.com/lodeworks/lodestone/internal"
)

// AppendFrame appends one wire frame carrying payload to dst. The payload is
// the packet-id varint followed by the packet body, already marshalled.
//
// With compression off the frame is the payload length followed by the
// payload. With compression on the frame body starts with the decompressed
// length: zero when the payload stayed below the threshold and follows raw,
// nonzero when the rest of the body is the zlib-deflated payload.
func AppendFrame(dst *bytes.Buffer, payload []byte, compressed bool, threshold int) error {
	if !compressed {
		WriteVarint(dst, int32(len(payload)))
		dst.Write(payload)
		return nil
	}

	if len(payload) < threshold {
		WriteVarint(dst, int32(len(payload))+1)
		dst.WriteByte(0)
		dst.Write(payload)
		return nil
	}

	buf := internal.BufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		internal.BufferPool.Put(buf)
	}()

	deflater := internal.DeflaterPool.Get().(*zlib.Writer)
	defer internal.DeflaterPool.Put(deflater)

	deflater.Reset(buf)
	if _, err := deflater.Write(payload); err != nil {
		return fmt.Errorf("failed to deflate payload: %w", err)
	}

	if err := deflater.Close(); err != nil {
		return fmt.Errorf("failed to deflate payload: %w", err)
	}

	WriteVarint(dst, int32(VarintSize(int32(len(payload)))+buf.Len()))
	WriteVarint(dst, int32(len(payload)))
	dst.Write(buf.Bytes())
	return nil
}
