package packet

// Clientbound packet ids for the login phase.
const (
	IDLoginDisconnect int32 = 0x00
	IDSetCompression  int32 = 0x03
)
