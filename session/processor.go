package session

// Processor interprets decoded packets. ProcessPacket is invoked
// synchronously on the connection's owning worker for every complete frame,
// in arrival order. The payload window aliases worker scratch memory and is
// only valid for the duration of the call.
//
// Returning an error abandons the remaining frames of the current read
// cycle; the error is reported to the connection's fault handler, never back
// into socket-read code.
type Processor interface {
	ProcessPacket(conn *Conn, id int32, payload []byte) error
}

// FaultHandler receives failures that must not terminate the owning worker:
// dispatch errors, decompression failures and flush I/O errors. It is an
// injected sink so callers can capture faults deterministically.
type FaultHandler func(conn *Conn, err error)

// NopProcessor discards every packet.
type NopProcessor struct{}

func (NopProcessor) ProcessPacket(_ *Conn, _ int32, _ []byte) error {
	return nil
}
