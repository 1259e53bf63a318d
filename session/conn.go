package session

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lodeworks/lodestone/internal"
	"github.com/lodeworks/lodestone/packet"
	"github.com/lodeworks/lodestone/protocol"
)

var (
	ErrAlreadyEnabled     = errors.New("already enabled")
	ErrThresholdZero      = errors.New("compression threshold is zero")
	ErrDuplicateMessageID = errors.New("duplicate plugin request message id")
)

// Skin is a proxy-forwarded skin blob: the textures property and its
// signature, both untouched by the engine.
type Skin struct {
	Textures  string
	Signature string
}

// Conn is one client connection: its protocol state machine, the session
// fields collected while the client logs in, and the outbound tick buffer.
//
// The tick buffer is the only state reachable from more than one goroutine;
// every mutation of it happens under tickMu. The partial-frame cache is
// touched only by the owning worker and needs no lock.
type Conn struct {
	sock   net.Conn
	logger *slog.Logger
	faults FaultHandler

	phase      atomic.Uint32
	compressMu sync.Mutex
	compressed toggle
	encrypted  toggle
	threshold  int

	mu              sync.RWMutex
	remoteAddr      net.Addr
	loginUsername   string
	serverAddress   string
	serverPort      int
	protocolVersion int32
	nonce           []byte
	secret          []byte
	proxyUUID       *uuid.UUID
	proxySkin       *Skin

	pluginMu       sync.Mutex
	pluginRequests map[int32]string

	tickMu  sync.Mutex
	tickBuf *protocol.Buffer

	cache []byte

	closed atomic.Bool
}

// NewConn wraps an accepted socket. bufferSize fixes the tick buffer
// capacity and threshold is the compression threshold in bytes; zero keeps
// compression permanently unavailable. A nil faults handler falls back to
// logging through logger.
func NewConn(sock net.Conn, logger *slog.Logger, faults FaultHandler, bufferSize, threshold int) *Conn {
	c := &Conn{
		sock:      sock,
		logger:    logger,
		faults:    faults,
		threshold: threshold,

		remoteAddr:     sock.RemoteAddr(),
		nonce:          make([]byte, 4),
		pluginRequests: make(map[int32]string),

		tickBuf: protocol.NewBuffer(bufferSize),
	}

	if c.faults == nil {
		c.faults = func(conn *Conn, err error) {
			logger.Error("connection fault", "addr", conn.RemoteAddr(), "err", err)
		}
	}
	return c
}

// Write appends pre-framed bytes to the tick buffer, flushing first when
// they do not fit in the remaining space. A run longer than the whole buffer
// cannot be queued at all and is reported to the fault handler.
func (c *Conn) Write(p []byte) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	c.writeLocked(p)
}

// WritePacket frames a packet, compressing it when compression is active,
// and queues it on the tick buffer.
func (c *Conn) WritePacket(pk packet.Packet) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	c.writePacketLocked(pk)
}

// WriteAndFlush queues a packet and flushes immediately, holding the lock
// across both so no concurrent write lands in between.
func (c *Conn) WriteAndFlush(pk packet.Packet) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	c.writePacketLocked(pk)
	c.flushLocked()
}

// Flush writes the tick buffer's contents to the socket in one blocking
// write and empties it. It is a no-op on a closed connection or an empty
// buffer. The buffer is cleared even when the write fails; unsent bytes are
// reported to the fault handler, never re-queued.
func (c *Conn) Flush() {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	c.flushLocked()
}

func (c *Conn) writeLocked(p []byte) {
	if len(p) > c.tickBuf.Free() {
		c.flushLocked()
	}

	if err := c.tickBuf.Append(p); err != nil {
		c.faults(c, fmt.Errorf("failed to queue %v bytes: %w", len(p), err))
	}
}

func (c *Conn) writePacketLocked(pk packet.Packet) {
	payload := internal.BufferPool.Get().(*bytes.Buffer)
	frame := internal.BufferPool.Get().(*bytes.Buffer)
	defer func() {
		payload.Reset()
		frame.Reset()
		internal.BufferPool.Put(payload)
		internal.BufferPool.Put(frame)
	}()

	protocol.WriteVarint(payload, pk.ID())
	pk.Marshal(payload)
	if err := protocol.AppendFrame(frame, payload.Bytes(), c.compressed.enabled(), c.threshold); err != nil {
		c.faults(c, fmt.Errorf("failed to frame packet %v: %w", pk.ID(), err))
		return
	}
	c.writeLocked(frame.Bytes())
}

func (c *Conn) flushLocked() {
	if c.closed.Load() || c.tickBuf.Remaining() == 0 {
		return
	}

	if _, err := c.sock.Write(c.tickBuf.Bytes()); err != nil {
		c.faults(c, fmt.Errorf("failed to flush: %w", err))
	}
	c.tickBuf.Reset()
}

// EnableCompression sends the compression notification to the peer and makes
// every frame written afterwards carry the compression envelope. The
// notification itself goes out uncompressed since the flag flips only after
// it is queued. One-way: there is no disable path.
//
// compressMu is held across check, send and flip so concurrent callers
// cannot double-send the notification; all but one fail with
// ErrAlreadyEnabled.
func (c *Conn) EnableCompression() error {
	c.compressMu.Lock()
	defer c.compressMu.Unlock()
	if c.compressed.enabled() {
		return ErrAlreadyEnabled
	}

	if c.threshold == 0 {
		return ErrThresholdZero
	}

	c.WriteAndFlush(&packet.SetCompression{Threshold: int32(c.threshold)})
	return c.compressed.enable()
}

// SetEncryptionKey marks encryption active and stores the shared secret for
// the cipher layer to pick up. One-way.
func (c *Conn) SetEncryptionKey(secret []byte) error {
	if err := c.encrypted.enable(); err != nil {
		return err
	}

	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()
	return nil
}

// CompressionEnabled reports whether frames are written with the compression
// envelope.
func (c *Conn) CompressionEnabled() bool {
	return c.compressed.enabled()
}

// EncryptionEnabled ...
func (c *Conn) EncryptionEnabled() bool {
	return c.encrypted.enabled()
}

// CompressionThreshold returns the configured threshold in bytes.
func (c *Conn) CompressionThreshold() int {
	return c.threshold
}

// Phase returns the current protocol phase.
func (c *Conn) Phase() Phase {
	return Phase(c.phase.Load())
}

// SetPhase moves the connection to a new protocol phase. Entering PhasePlay
// clears the plugin request table, whose entries are meaningless from that
// point on.
func (c *Conn) SetPhase(phase Phase) {
	c.phase.Store(uint32(phase))
	if phase == PhasePlay {
		c.pluginMu.Lock()
		clear(c.pluginRequests)
		c.pluginMu.Unlock()
	}
}

// AddPluginRequestEntry records the channel a login plugin request with the
// message id passed was sent on. Outside the login phase this is a no-op; a
// message id already present fails with ErrDuplicateMessageID and keeps the
// original entry.
func (c *Conn) AddPluginRequestEntry(messageID int32, channel string) error {
	if c.Phase() != PhaseLogin {
		return nil
	}

	c.pluginMu.Lock()
	defer c.pluginMu.Unlock()
	if _, ok := c.pluginRequests[messageID]; ok {
		return ErrDuplicateMessageID
	}
	c.pluginRequests[messageID] = channel
	return nil
}

// PluginRequestChannel looks up the channel recorded for a message id.
func (c *Conn) PluginRequestChannel(messageID int32) (string, bool) {
	c.pluginMu.Lock()
	defer c.pluginMu.Unlock()
	channel, ok := c.pluginRequests[messageID]
	return channel, ok
}

// RemoteAddr returns the peer address, which may have been rewritten by a
// trusted proxy.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

// SetRemoteAddr rewrites the peer address with the one a trusted proxy
// forwarded.
func (c *Conn) SetRemoteAddr(addr net.Addr) {
	c.mu.Lock()
	c.remoteAddr = addr
	c.mu.Unlock()
}

// LoginUsername returns the username the client sent during login. It has
// not been checked and could be anything.
func (c *Conn) LoginUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loginUsername
}

// SetLoginUsername ...
func (c *Conn) SetLoginUsername(username string) {
	c.mu.Lock()
	c.loginUsername = username
	c.mu.Unlock()
}

// ServerAddress returns the address the client claims to have connected
// with. Client-supplied, possibly wrong.
func (c *Conn) ServerAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverAddress
}

// ServerPort returns the port the client claims to have connected with.
func (c *Conn) ServerPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverPort
}

// ProtocolVersion returns the protocol version the client declared.
func (c *Conn) ProtocolVersion() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protocolVersion
}

// SetServerInformation stores the address, port and protocol version the
// client declared in its handshake.
func (c *Conn) SetServerInformation(address string, port int, version int32) {
	c.mu.Lock()
	c.serverAddress = address
	c.serverPort = port
	c.protocolVersion = version
	c.mu.Unlock()
}

// Nonce returns the session nonce used during authentication.
func (c *Conn) Nonce() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonce
}

// SetNonce ...
func (c *Conn) SetNonce(nonce []byte) {
	c.mu.Lock()
	c.nonce = nonce
	c.mu.Unlock()
}

// ProxyUUID returns the identity a trusted proxy forwarded, if any.
func (c *Conn) ProxyUUID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.proxyUUID == nil {
		return uuid.UUID{}, false
	}
	return *c.proxyUUID, true
}

// SetProxyUUID ...
func (c *Conn) SetProxyUUID(id uuid.UUID) {
	c.mu.Lock()
	c.proxyUUID = &id
	c.mu.Unlock()
}

// ProxySkin returns the skin a trusted proxy forwarded, nil if none.
func (c *Conn) ProxySkin() *Skin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxySkin
}

// SetProxySkin ...
func (c *Conn) SetProxySkin(skin *Skin) {
	c.mu.Lock()
	c.proxySkin = skin
	c.mu.Unlock()
}

// Socket exposes the underlying socket to the worker that owns the
// connection.
func (c *Conn) Socket() net.Conn {
	return c.sock
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Disconnect kicks the peer with a reason and closes the connection.
func (c *Conn) Disconnect(reason string) {
	c.WriteAndFlush(&packet.Disconnect{Reason: reason})
	c.Close()
}

// Close closes the underlying socket. Pending tick buffer contents are
// dropped.
func (c *Conn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.sock.Close()
	}
}
