package lodestone

type Opts struct {
	// Addr is the address to listen on.
	Addr string `yaml:"addr"`
	// SocketBufferSize is the capacity in bytes of the per-worker read buffer
	// and of every connection's outbound tick buffer. A frame larger than
	// this cannot be decoded, and a single queued write larger than this is
	// dropped.
	SocketBufferSize int `yaml:"socket_buffer_size"`
	// ScratchBufferSize is the capacity in bytes of the per-worker
	// decompression buffer, bounding the decompressed size of one packet.
	ScratchBufferSize int `yaml:"scratch_buffer_size"`
	// CompressionThreshold is the minimum payload size in bytes that gets
	// deflated once compression is enabled; smaller payloads travel raw
	// inside the compression envelope. Zero disables compression entirely.
	CompressionThreshold int `yaml:"compression_threshold"`
	// FlushInterval is the tick interval in milliseconds at which every
	// connection's tick buffer is flushed to its socket.
	FlushInterval int64 `yaml:"flush_interval"`
}

func DefaultOpts() *Opts {
	return &Opts{
		Addr:                 ":25565",
		SocketBufferSize:     1 << 18,
		ScratchBufferSize:    1 << 18,
		CompressionThreshold: 256,
		FlushInterval:        50,
	}
}
