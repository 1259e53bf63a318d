package lodestone

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lodeworks/lodestone/session"
)

// Lodestone is the server front of the connection engine. It accepts TCP
// sockets, runs one worker goroutine per connection to decode inbound
// frames, and flushes every connection's tick buffer at a fixed rate.
type Lodestone struct {
	processor session.Processor
	faults    session.FaultHandler

	listener net.Listener
	registry *session.Registry

	logger *slog.Logger
	opts   Opts

	closed chan struct{}
	once   sync.Once
}

func New(processor session.Processor, logger *slog.Logger, opts *Opts, faults session.FaultHandler) *Lodestone {
	if opts == nil {
		opts = DefaultOpts()
	}

	if processor == nil {
		processor = session.NopProcessor{}
	}
	return &Lodestone{
		processor: processor,
		faults:    faults,

		registry: session.NewRegistry(),

		logger: logger,
		opts:   *opts,

		closed: make(chan struct{}),
	}
}

// Listen binds the TCP listener and starts the tick loop.
func (l *Lodestone) Listen() error {
	listener, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		l.logger.Error("failed to listen", "err", err)
		return err
	}

	l.listener = listener
	go l.tick()
	l.logger.Info("started listening", "addr", listener.Addr())
	return nil
}

// Accept blocks until a client connects, registers the connection and starts
// its worker.
func (l *Lodestone) Accept() (*session.Conn, error) {
	sock, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := sock.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetReadBuffer(l.opts.SocketBufferSize)
		_ = tcpConn.SetWriteBuffer(l.opts.SocketBufferSize)
	}

	conn := session.NewConn(sock, l.logger, l.faults, l.opts.SocketBufferSize, l.opts.CompressionThreshold)
	l.registry.Add(conn)
	go l.handle(conn)
	l.logger.Debug("accepted connection", "addr", conn.RemoteAddr())
	return conn, nil
}

func (l *Lodestone) Registry() *session.Registry {
	return l.registry
}

func (l *Lodestone) Opts() Opts {
	return l.opts
}

func (l *Lodestone) Close() (err error) {
	l.once.Do(func() {
		close(l.closed)
		for _, conn := range l.registry.All() {
			conn.Close()
		}

		if l.listener != nil {
			err = l.listener.Close()
		}
	})
	return err
}

// handle is the worker loop owning one connection: it fills the read buffer
// from the socket, with any cached partial frame re-prepended, and decodes
// every complete frame synchronously. The scratch context never leaves this
// goroutine.
func (l *Lodestone) handle(conn *session.Conn) {
	ctx := session.NewContext(l.opts.SocketBufferSize, l.opts.ScratchBufferSize)
	defer func() {
		conn.Close()
		l.registry.Remove(conn)
		l.logger.Debug("closed connection", "addr", conn.RemoteAddr())
	}()

	for {
		buf := ctx.ReadBuffer
		buf.Reset()
		conn.ConsumeCache(buf)

		writable := buf.Writable()
		if len(writable) == 0 {
			l.logger.Error("frame exceeds socket buffer size", "addr", conn.RemoteAddr())
			return
		}

		n, err := conn.Socket().Read(writable)
		if err != nil {
			if !conn.Closed() {
				l.logger.Debug("failed to read from connection", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		buf.Advance(n)
		if err := conn.ProcessPackets(ctx, l.processor); err != nil {
			l.logger.Error("malformed packet stream", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}
}

// tick flushes every registered connection once per flush interval. Writes
// queued by game logic between ticks coalesce into one socket write here.
func (l *Lodestone) tick() {
	ticker := time.NewTicker(time.Millisecond * time.Duration(l.opts.FlushInterval))
	defer ticker.Stop()
	for {
		select {
		case <-l.closed:
			return
		case <-ticker.C:
			for _, conn := range l.registry.All() {
				conn.Flush()
			}
		}
	}
}

// Disconnect kicks a connection with a reason and removes it from the
// registry.
func (l *Lodestone) Disconnect(conn *session.Conn, reason string) {
	conn.Disconnect(reason)
	l.registry.Remove(conn)
}
