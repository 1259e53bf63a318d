package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lodeworks/lodestone/packet"
	"github.com/lodeworks/lodestone/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSock struct {
	mu         sync.Mutex
	writes     [][]byte
	failWrites bool
}

func (f *fakeSock) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return 0, errors.New("socket backpressure")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeSock) Read([]byte) (int, error)        { return 0, io.EOF }
func (f *fakeSock) Close() error                    { return nil }
func (f *fakeSock) LocalAddr() net.Addr             { return &net.TCPAddr{} }
func (f *fakeSock) RemoteAddr() net.Addr            { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 25565} }
func (f *fakeSock) SetDeadline(time.Time) error     { return nil }
func (f *fakeSock) SetReadDeadline(time.Time) error { return nil }
func (f *fakeSock) SetWriteDeadline(time.Time) error {
	return nil
}

func (f *fakeSock) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type faultRecorder struct {
	mu     sync.Mutex
	faults []error
}

func (r *faultRecorder) handle(_ *Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, err)
}

func (r *faultRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.faults)
}

func newTestConn(bufferSize, threshold int) (*Conn, *fakeSock, *faultRecorder) {
	sock := &fakeSock{}
	faults := &faultRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewConn(sock, logger, faults.handle, bufferSize, threshold), sock, faults
}

// frameBytes encodes one wire frame for the packet id and body passed.
func frameBytes(t *testing.T, id int32, body []byte, compressed bool, threshold int) []byte {
	t.Helper()
	payload := &bytes.Buffer{}
	protocol.WriteVarint(payload, id)
	payload.Write(body)

	dst := &bytes.Buffer{}
	require.NoError(t, protocol.AppendFrame(dst, payload.Bytes(), compressed, threshold))
	return dst.Bytes()
}

func TestFlushEmptyBufferNeverTouchesSocket(t *testing.T) {
	c, sock, _ := newTestConn(64, 0)
	c.Flush()
	c.Flush()
	assert.Empty(t, sock.written())
}

func TestFlushAfterCloseIsNoop(t *testing.T) {
	c, sock, _ := newTestConn(64, 0)
	c.Write([]byte{1, 2, 3})
	c.Close()
	c.Flush()
	assert.Empty(t, sock.written())
}

func TestWriteCoalescesUntilFlush(t *testing.T) {
	c, sock, _ := newTestConn(64, 0)
	c.Write([]byte{1, 2})
	c.Write([]byte{3})
	assert.Empty(t, sock.written())

	c.Flush()
	writes := sock.written()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{1, 2, 3}, writes[0])

	// buffer reset after flush
	c.Flush()
	assert.Len(t, sock.written(), 1)
}

func TestWriteImplicitFlushWhenFull(t *testing.T) {
	c, sock, _ := newTestConn(8, 0)
	c.Write([]byte{1, 2, 3, 4, 5})
	c.Write([]byte{6, 7, 8, 9})

	writes := sock.written()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, writes[0])
	assert.Equal(t, []byte{6, 7, 8, 9}, c.tickBuf.Bytes())
	assert.LessOrEqual(t, c.tickBuf.Remaining(), c.tickBuf.Cap())
}

func TestWriteLargerThanCapacityIsDropped(t *testing.T) {
	c, sock, faults := newTestConn(4, 0)
	c.Write([]byte{1, 2, 3, 4, 5, 6})
	assert.Empty(t, sock.written())
	assert.Equal(t, 0, c.tickBuf.Remaining())
	assert.Equal(t, 1, faults.count())
}

func TestFlushClearsBufferOnWriteFailure(t *testing.T) {
	c, sock, faults := newTestConn(64, 0)
	sock.failWrites = true
	c.Write([]byte{1, 2, 3})
	c.Flush()

	assert.Equal(t, 1, faults.count())
	assert.Equal(t, 0, c.tickBuf.Remaining())

	// nothing is retried
	sock.failWrites = false
	c.Flush()
	assert.Empty(t, sock.written())
}

func TestWriteAndFlushFramesPacket(t *testing.T) {
	c, sock, _ := newTestConn(64, 0)
	c.WriteAndFlush(&packet.Disconnect{Reason: "ab"})

	body := &bytes.Buffer{}
	packet.WriteString(body, "ab")
	writes := sock.written()
	require.Len(t, writes, 1)
	assert.Equal(t, frameBytes(t, packet.IDLoginDisconnect, body.Bytes(), false, 0), writes[0])
}

func TestEnableCompression(t *testing.T) {
	c, sock, _ := newTestConn(64, 256)
	require.NoError(t, c.EnableCompression())
	assert.True(t, c.CompressionEnabled())

	// the notification must have gone out uncompressed
	notification := &bytes.Buffer{}
	protocol.WriteVarint(notification, int32(256))
	writes := sock.written()
	require.Len(t, writes, 1)
	assert.Equal(t, frameBytes(t, packet.IDSetCompression, notification.Bytes(), false, 0), writes[0])

	// frames written afterwards carry the compression envelope
	c.WriteAndFlush(&packet.Disconnect{Reason: "x"})
	body := &bytes.Buffer{}
	packet.WriteString(body, "x")
	writes = sock.written()
	require.Len(t, writes, 2)
	assert.Equal(t, frameBytes(t, packet.IDLoginDisconnect, body.Bytes(), true, 256), writes[1])

	assert.ErrorIs(t, c.EnableCompression(), ErrAlreadyEnabled)
}

func TestEnableCompressionConcurrent(t *testing.T) {
	c, sock, _ := newTestConn(64, 256)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.EnableCompression()
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyEnabled)
		}
	}
	assert.Equal(t, 1, succeeded)
	// the notification went out exactly once
	assert.Len(t, sock.written(), 1)
}

func TestEnableCompressionThresholdZero(t *testing.T) {
	c, sock, _ := newTestConn(64, 0)
	assert.ErrorIs(t, c.EnableCompression(), ErrThresholdZero)
	assert.False(t, c.CompressionEnabled())
	assert.Empty(t, sock.written())
}

func TestSetEncryptionKeyOneWay(t *testing.T) {
	c, _, _ := newTestConn(64, 0)
	require.NoError(t, c.SetEncryptionKey([]byte{1, 2, 3, 4}))
	assert.True(t, c.EncryptionEnabled())
	assert.ErrorIs(t, c.SetEncryptionKey([]byte{5, 6, 7, 8}), ErrAlreadyEnabled)
}

func TestSetPhasePlayClearsPluginRequests(t *testing.T) {
	c, _, _ := newTestConn(64, 0)
	c.SetPhase(PhaseLogin)
	require.NoError(t, c.AddPluginRequestEntry(1, "minecraft:brand"))

	c.SetPhase(PhaseStatus)
	c.SetPhase(PhaseLogin)
	_, ok := c.PluginRequestChannel(1)
	assert.True(t, ok)

	c.SetPhase(PhasePlay)
	_, ok = c.PluginRequestChannel(1)
	assert.False(t, ok)
}

func TestAddPluginRequestEntry(t *testing.T) {
	c, _, _ := newTestConn(64, 0)

	// silent no-op outside the login phase
	require.NoError(t, c.AddPluginRequestEntry(7, "minecraft:register"))
	_, ok := c.PluginRequestChannel(7)
	assert.False(t, ok)

	c.SetPhase(PhaseLogin)
	require.NoError(t, c.AddPluginRequestEntry(7, "minecraft:register"))
	assert.ErrorIs(t, c.AddPluginRequestEntry(7, "minecraft:unregister"), ErrDuplicateMessageID)

	channel, ok := c.PluginRequestChannel(7)
	require.True(t, ok)
	assert.Equal(t, "minecraft:register", channel)
}

func TestSessionAccessors(t *testing.T) {
	c, _, _ := newTestConn(64, 0)

	c.SetLoginUsername("Steve")
	assert.Equal(t, "Steve", c.LoginUsername())

	c.SetServerInformation("mc.example.org", 25565, 767)
	assert.Equal(t, "mc.example.org", c.ServerAddress())
	assert.Equal(t, 25565, c.ServerPort())
	assert.Equal(t, int32(767), c.ProtocolVersion())

	nonce := []byte{0xde, 0xad, 0xbe, 0xef}
	c.SetNonce(nonce)
	assert.Equal(t, nonce, c.Nonce())

	_, ok := c.ProxyUUID()
	assert.False(t, ok)
	id := uuid.New()
	c.SetProxyUUID(id)
	got, ok := c.ProxyUUID()
	require.True(t, ok)
	assert.Equal(t, id, got)

	assert.Nil(t, c.ProxySkin())
	skin := &Skin{Textures: "textures", Signature: "signature"}
	c.SetProxySkin(skin)
	assert.Equal(t, skin, c.ProxySkin())

	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}
	c.SetRemoteAddr(addr)
	assert.Equal(t, addr, c.RemoteAddr())
}
