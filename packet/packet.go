package packet

import "bytes"

// Packet is a clientbound packet the engine can frame and queue on a
// connection. Marshal writes the packet body only; the id prefix and the
// frame envelope are added by the connection's write path.
type Packet interface {
	ID() int32
	Marshal(buf *bytes.Buffer)
}
