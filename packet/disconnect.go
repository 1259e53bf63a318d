package packet

import "bytes"

// Disconnect kicks the peer during the login phase with a textual reason.
type Disconnect struct {
	Reason string
}

func (pk *Disconnect) ID() int32 {
	return IDLoginDisconnect
}

func (pk *Disconnect) Marshal(buf *bytes.Buffer) {
	WriteString(buf, pk.Reason)
}
