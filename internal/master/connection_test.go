package master

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MS-LIMA/Unity-MasterServerKit-sub000/internal/protocol"
)

func encodeFrame(op protocol.Opcode, build func(*protocol.Packet)) []byte {
	pkt := protocol.NewPacket(op)
	if build != nil {
		build(pkt)
	}
	pkt.WriteLength()
	return pkt.Bytes()
}

func TestFrameBuffer_ChunkedFramesDecodeInOrder(t *testing.T) {
	var wire []byte
	for i := 0; i < 5; i++ {
		i := i
		wire = append(wire, encodeFrame(protocol.ConnectToMasterType, func(p *protocol.Packet) {
			p.WriteInt(int32(i))
		})...)
	}

	// Feed the stream in every possible chunk size; the same frames must
	// come out regardless of how the bytes were split.
	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		var fb frameBuffer
		var frames [][]byte
		for off := 0; off < len(wire); off += chunkSize {
			end := off + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			got, err := fb.Append(wire[off:end])
			require.NoError(t, err)
			frames = append(frames, got...)
		}

		require.Len(t, frames, 5, "chunk size %d", chunkSize)
		for i, frame := range frames {
			r := protocol.NewReader(frame)
			op, err := r.ReadOpcode()
			require.NoError(t, err)
			assert.Equal(t, protocol.ConnectToMasterType, op)
			seq, err := r.ReadInt()
			require.NoError(t, err)
			assert.Equal(t, int32(i), seq, "chunk size %d", chunkSize)
		}
	}
}

func TestFrameBuffer_NonPositiveLengthDropsBufferedRemainder(t *testing.T) {
	var fb frameBuffer

	// A zero length stops the scan; the pipelined frame behind it goes
	// down with the rest of the buffer.
	wire := []byte{0, 0, 0, 0}
	wire = append(wire, encodeFrame(protocol.LeaveRoomType, nil)...)

	frames, err := fb.Append(wire)
	require.NoError(t, err)
	assert.Empty(t, frames)

	// The buffer starts clean on the next read.
	frames, err = fb.Append(encodeFrame(protocol.LeaveRoomType, nil))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	op, err := protocol.NewReader(frames[0]).ReadOpcode()
	require.NoError(t, err)
	assert.Equal(t, protocol.LeaveRoomType, op)

	// Frames completed ahead of a negative length still come out.
	fb = frameBuffer{}
	wire = encodeFrame(protocol.FetchRoomListType, func(p *protocol.Packet) {
		p.WriteString("1.0")
	})
	wire = append(wire, 0xFF, 0xFF, 0xFF, 0xFF)
	wire = append(wire, encodeFrame(protocol.LeaveRoomType, nil)...)

	frames, err = fb.Append(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	op, err = protocol.NewReader(frames[0]).ReadOpcode()
	require.NoError(t, err)
	assert.Equal(t, protocol.FetchRoomListType, op)
}

func TestFrameBuffer_PartialFrameRetainedAcrossAppends(t *testing.T) {
	var fb frameBuffer
	wire := encodeFrame(protocol.ConnectToMasterType, func(p *protocol.Packet) {
		p.WriteString("1.0")
		p.WriteBool(true)
	})

	frames, err := fb.Append(wire[:protocol.HeaderSize+2])
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = fb.Append(wire[protocol.HeaderSize+2:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
}

func TestFrameBuffer_OversizedLengthRejected(t *testing.T) {
	var fb frameBuffer

	pkt := protocol.NewPacket(protocol.ConnectToMasterType)
	pkt.WriteLength()
	wire := pkt.Bytes()
	// Overwrite the prefix with a length past the frame limit.
	wire[0] = 0x01
	wire[1] = 0x00
	wire[2] = 0x00
	wire[3] = 0x7F

	_, err := fb.Append(wire)
	assert.ErrorIs(t, err, errFrameTooLarge)
}

func TestConnection_ServeDeliversFramesAndReportsClose(t *testing.T) {
	client, server := net.Pipe()
	logger := logrus.New()
	logger.Out = io.Discard
	conn := NewConnection(0, 1, server, logger)

	var mu sync.Mutex
	var got [][]byte
	closed := make(chan struct{})
	go conn.Serve(
		func(frame []byte) {
			mu.Lock()
			got = append(got, frame)
			mu.Unlock()
		},
		func() { close(closed) },
	)

	wire := encodeFrame(protocol.FetchPlayerCountType, func(p *protocol.Packet) {
		p.WriteString("1.0")
	})
	// Split the write so reassembly happens across reads.
	_, err := client.Write(wire[:3])
	require.NoError(t, err)
	_, err = client.Write(wire[3:])
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 5*time.Millisecond)

	client.Close()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("close never reported")
	}
}

func TestConnection_SendWritesLengthPrefixedFrame(t *testing.T) {
	client, server := net.Pipe()
	logger := logrus.New()
	logger.Out = io.Discard
	conn := NewConnection(0, 1, server, logger)
	go conn.Serve(func([]byte) {}, func() {})
	defer conn.Close()

	conn.Send(protocol.OnSpawnProcessStarted())

	buf := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)

	require.Equal(t, protocol.HeaderSize+4, n)
	var fb frameBuffer
	frames, err := fb.Append(buf[:n])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	op, err := protocol.NewReader(frames[0]).ReadOpcode()
	require.NoError(t, err)
	assert.Equal(t, protocol.OnSpawnProcessStartedType, op)
}
