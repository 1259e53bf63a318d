package packet

import (
	"bytes"

	"github.com/lodeworks/lodestone/protocol"
)

// SetCompression notifies the peer that every frame after this one carries
// the compression envelope. It must itself be sent uncompressed.
type SetCompression struct {
	Threshold int32
}

func (pk *SetCompression) ID() int32 {
	return IDSetCompression
}

func (pk *SetCompression) Marshal(buf *bytes.Buffer) {
	protocol.WriteVarint(buf, pk.Threshold)
}
