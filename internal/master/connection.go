package master

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

const (
	// maxFrameSize bounds a single declared frame length. A peer declaring
	// more than this is speaking a different protocol and is disconnected.
	maxFrameSize = 1 << 20

	readBufferSize = 4096
	sendQueueSize  = 256
)

var errFrameTooLarge = errors.New("declared frame length exceeds limit")

// frameBuffer reassembles length-prefixed frames from a TCP stream. Bytes
// arrive in arbitrary chunks; Append retains any trailing partial frame
// for the next call.
type frameBuffer struct {
	buf []byte
}

// Append consumes a chunk of stream bytes and returns the payloads of
// every frame completed by it, length prefixes stripped, in wire order.
// A non-positive declared length is malformed (or a keepalive) and stops
// the scan: the prefix and everything buffered behind it are dropped.
func (b *frameBuffer) Append(data []byte) ([][]byte, error) {
	b.buf = append(b.buf, data...)

	var frames [][]byte
	for len(b.buf) >= protocol.HeaderSize {
		length := int(int32(uint32(b.buf[0]) | uint32(b.buf[1])<<8 | uint32(b.buf[2])<<16 | uint32(b.buf[3])<<24))

		if length <= 0 {
			b.buf = nil
			return frames, nil
		}
		if length > maxFrameSize {
			return frames, fmt.Errorf("%w: %d", errFrameTooLarge, length)
		}
		if len(b.buf) < protocol.HeaderSize+length {
			break
		}

		frame := make([]byte, length)
		copy(frame, b.buf[protocol.HeaderSize:protocol.HeaderSize+length])
		frames = append(frames, frame)
		b.buf = b.buf[protocol.HeaderSize+length:]
	}

	if len(b.buf) == 0 {
		b.buf = nil
	}
	return frames, nil
}

// Connection owns the socket for one connected peer. Reads happen on the
// connection's own goroutine and completed frames are handed to onFrame;
// writes are serialized through a queue drained by a second goroutine so
// the dispatch thread never blocks on a peer's socket.
//
// The generation counter distinguishes successive occupants of a recycled
// slot: callbacks captured against an old generation no-op once the slot
// has been reused.
type Connection struct {
	ID         int
	Generation uint64

	conn   net.Conn
	logger *logrus.Logger

	sendQueue chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewConnection(id int, generation uint64, conn net.Conn, logger *logrus.Logger) *Connection {
	return &Connection{
		ID:         id,
		Generation: generation,
		conn:       conn,
		logger:     logger,
		sendQueue:  make(chan []byte, sendQueueSize),
		closed:     make(chan struct{}),
	}
}

func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Serve runs the read and write loops until the peer disconnects or the
// connection is closed. onFrame is called from the read goroutine with
// each completed frame; onClosed is called exactly once, after the read
// loop has stopped delivering frames.
func (c *Connection) Serve(onFrame func(frame []byte), onClosed func()) {
	go c.writeLoop()

	var frames frameBuffer
	readBuf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(readBuf)
		if n > 0 {
			completed, ferr := frames.Append(readBuf[:n])
			for _, frame := range completed {
				onFrame(frame)
			}
			if ferr != nil {
				c.logger.Warnf("disconnecting client %d: %v", c.ID, ferr)
				break
			}
		}
		if err != nil {
			break
		}
	}

	c.Close()
	onClosed()
}

// Send patches the packet's length prefix and queues it for the write
// loop. A peer that cannot drain its queue is disconnected rather than
// allowed to stall the caller.
func (c *Connection) Send(pkt *protocol.Packet) {
	pkt.WriteLength()
	select {
	case c.sendQueue <- pkt.Bytes():
	case <-c.closed:
	default:
		c.logger.Warnf("disconnecting client %d: send queue full", c.ID)
		c.Close()
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.sendQueue:
			if _, err := c.conn.Write(data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close shuts the socket down, which unblocks the read loop. Idempotent.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
