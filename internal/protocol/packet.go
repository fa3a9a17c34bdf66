// Package protocol implements the master server's wire format: typed
// little-endian fields framed by a 4 byte length prefix.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the number of bytes in the length prefix that precedes
// every frame on the wire. The length value counts everything after the
// prefix itself.
const HeaderSize = 4

var ErrTruncatedPacket = errors.New("packet truncated")

// Packet is a growable buffer of typed fields with a monotonically
// advancing read cursor. Writers append; readers consume from the front.
type Packet struct {
	buf []byte
	pos int
}

// NewPacket allocates a Packet for sending. The first four bytes are
// reserved for the length prefix (patched by WriteLength) and the opcode
// is written immediately after them.
func NewPacket(op Opcode) *Packet {
	p := &Packet{buf: make([]byte, HeaderSize, 64)}
	p.WriteInt(int32(op))
	return p
}

// NewReader wraps a received frame (length prefix already stripped) for
// decoding. The first field read should be the opcode.
func NewReader(frame []byte) *Packet {
	return &Packet{buf: frame}
}

func (p *Packet) WriteBool(v bool) {
	if v {
		p.buf = append(p.buf, 1)
	} else {
		p.buf = append(p.buf, 0)
	}
}

func (p *Packet) WriteShort(v int16) {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(v))
}

func (p *Packet) WriteInt(v int32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(v))
}

// WriteString writes an int length prefix followed by the UTF-8 bytes.
func (p *Packet) WriteString(v string) {
	p.WriteInt(int32(len(v)))
	p.buf = append(p.buf, v...)
}

// WriteBytes writes an int length prefix followed by the raw bytes.
func (p *Packet) WriteBytes(v []byte) {
	p.WriteInt(int32(len(v)))
	p.buf = append(p.buf, v...)
}

// WriteLength patches the first four bytes of the buffer with the total
// number of bytes that follow them. Must be called once, after all fields
// have been written and before Bytes.
func (p *Packet) WriteLength() {
	binary.LittleEndian.PutUint32(p.buf[:HeaderSize], uint32(len(p.buf)-HeaderSize))
}

// Bytes returns the backing buffer, including the length prefix for
// packets built with NewPacket.
func (p *Packet) Bytes() []byte {
	return p.buf
}

// Remaining returns the number of unread bytes past the cursor.
func (p *Packet) Remaining() int {
	return len(p.buf) - p.pos
}

func (p *Packet) ReadBool() (bool, error) {
	if p.Remaining() < 1 {
		return false, fmt.Errorf("reading bool at offset %d: %w", p.pos, ErrTruncatedPacket)
	}
	v := p.buf[p.pos] != 0
	p.pos++
	return v, nil
}

func (p *Packet) ReadShort() (int16, error) {
	if p.Remaining() < 2 {
		return 0, fmt.Errorf("reading short at offset %d: %w", p.pos, ErrTruncatedPacket)
	}
	v := int16(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	return v, nil
}

func (p *Packet) ReadInt() (int32, error) {
	if p.Remaining() < 4 {
		return 0, fmt.Errorf("reading int at offset %d: %w", p.pos, ErrTruncatedPacket)
	}
	v := int32(binary.LittleEndian.Uint32(p.buf[p.pos:]))
	p.pos += 4
	return v, nil
}

func (p *Packet) ReadString() (string, error) {
	b, err := p.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Packet) ReadBytes() ([]byte, error) {
	length, err := p.ReadInt()
	if err != nil {
		return nil, err
	}
	if length < 0 || int(length) > p.Remaining() {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", length, p.pos, ErrTruncatedPacket)
	}
	v := p.buf[p.pos : p.pos+int(length) : p.pos+int(length)]
	p.pos += int(length)
	return v, nil
}

// ReadOpcode consumes the opcode field at the front of a received frame.
func (p *Packet) ReadOpcode() (Opcode, error) {
	v, err := p.ReadInt()
	return Opcode(v), err
}
