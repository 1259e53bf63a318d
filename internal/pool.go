package internal

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

var BufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

var DeflaterPool = sync.Pool{
	New: func() any {
		return zlib.NewWriter(io.Discard)
	},
}
