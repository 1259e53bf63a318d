package session

import (
	"errors"
	"fmt"

	"github.com/lodeworks/lodestone/protocol"
)

// ConsumeCache prepends the partial frame left over from the previous read
// cycle to buf and clears the cache. It must be called on a freshly reset
// read buffer, before the socket read that fills it.
func (c *Conn) ConsumeCache(buf *protocol.Buffer) {
	if c.cache == nil {
		return
	}

	_ = buf.Append(c.cache)
	c.cache = nil
}

// ProcessPackets decodes every complete frame in ctx.ReadBuffer and hands
// each packet to the processor, in arrival order. A trailing partial frame
// is saved to the cache for the next read cycle. A processor error is
// reported to the fault handler and abandons the remaining frames of this
// cycle without failing the connection.
//
// A non-nil return means byte alignment with the stream has been lost and
// the connection must be closed.
func (c *Conn) ProcessPackets(ctx *Context, processor Processor) error {
	buf := ctx.ReadBuffer
	limit := buf.Limit()
	for buf.Remaining() > 0 {
		start := buf.Pos()
		frameLen, err := buf.ReadVarint()
		if err != nil {
			if errors.Is(err, protocol.ErrUnderflow) {
				c.saveCache(buf, start, limit)
				return nil
			}
			return fmt.Errorf("failed to decode frame length: %w", err)
		}

		if frameLen < 0 {
			return fmt.Errorf("negative frame length %v", frameLen)
		}

		end := buf.Pos() + int(frameLen)
		if end > limit {
			c.saveCache(buf, start, limit)
			return nil
		}

		// Restrict the window so a malformed payload cannot read past
		// the frame boundary.
		buf.SetLimit(end)

		content := buf
		if c.compressed.enabled() {
			dataLen, err := buf.ReadVarint()
			if err != nil {
				return fmt.Errorf("failed to decode data length: %w", err)
			}

			if dataLen < 0 {
				return fmt.Errorf("negative data length %v", dataLen)
			}

			if dataLen != 0 {
				inflated, err := ctx.inflate(buf.Bytes(), int(dataLen))
				if err != nil {
					// Drop the packet; the frame boundary is still known.
					c.faults(c, fmt.Errorf("failed to decompress packet: %w", err))
					buf.SetLimit(limit)
					buf.SetPos(end)
					continue
				}
				content = inflated
			}
		}

		id, err := content.ReadVarint()
		if err != nil {
			if errors.Is(err, protocol.ErrUnderflow) {
				// Frame too short to carry a packet id. Treated like a
				// dispatch failure: report and abandon the cycle.
				c.faults(c, fmt.Errorf("frame of length %v too short for a packet id", frameLen))
				buf.SetLimit(limit)
				return nil
			}
			return fmt.Errorf("failed to decode packet id: %w", err)
		}

		if err := processor.ProcessPacket(c, id, content.Bytes()); err != nil {
			// Fail fast: the rest of this read cycle is abandoned, complete
			// frames included.
			c.faults(c, fmt.Errorf("failed to process packet %v: %w", id, err))
			buf.SetLimit(limit)
			return nil
		}

		buf.SetLimit(limit)
		buf.SetPos(end)
	}
	return nil
}

// saveCache copies the undecoded remainder for replay on the next read
// cycle, overwriting any previous remainder.
func (c *Conn) saveCache(buf *protocol.Buffer, start, limit int) {
	buf.SetPos(start)
	buf.SetLimit(limit)
	c.cache = append(c.cache[:0], buf.Bytes()...)
}
