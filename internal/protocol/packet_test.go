package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestPacket_WriteLength(t *testing.T) {
	p := NewPacket(ConnectToMasterType)
	p.WriteString("1.0")
	p.WriteBool(true)
	p.WriteLength()

	b := p.Bytes()
	declared := int(binary.LittleEndian.Uint32(b[:4]))
	if declared != len(b)-HeaderSize {
		t.Errorf("WriteLength() declared %d bytes, frame body is %d", declared, len(b)-HeaderSize)
	}
}

func TestPacket_RoundTrip(t *testing.T) {
	p := NewPacket(CreateRoomType)
	p.WriteBool(true)
	p.WriteBool(false)
	p.WriteShort(-12345)
	p.WriteInt(0x7FEEDDCC)
	p.WriteString("room-A")
	p.WriteString("")
	p.WriteBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	p.WriteLength()

	r := NewReader(p.Bytes()[HeaderSize:])

	op, err := r.ReadOpcode()
	if err != nil || op != CreateRoomType {
		t.Fatalf("ReadOpcode() = %v, %v, want %v", op, err, CreateRoomType)
	}

	bools := make([]bool, 2)
	for i := range bools {
		if bools[i], err = r.ReadBool(); err != nil {
			t.Fatalf("ReadBool() error: %v", err)
		}
	}
	if diff := deep.Equal(bools, []bool{true, false}); diff != nil {
		t.Errorf("bool fields did not round trip: %v", diff)
	}

	s, err := r.ReadShort()
	if err != nil || s != -12345 {
		t.Errorf("ReadShort() = %v, %v, want -12345", s, err)
	}
	i, err := r.ReadInt()
	if err != nil || i != 0x7FEEDDCC {
		t.Errorf("ReadInt() = %#x, %v, want 0x7feeddcc", i, err)
	}

	strs := make([]string, 2)
	for i := range strs {
		if strs[i], err = r.ReadString(); err != nil {
			t.Fatalf("ReadString() error: %v", err)
		}
	}
	if diff := deep.Equal(strs, []string{"room-A", ""}); diff != nil {
		t.Errorf("string fields did not round trip: %v", diff)
	}

	raw, err := r.ReadBytes()
	if err != nil {
		t.Fatalf("ReadBytes() error: %v", err)
	}
	if diff := deep.Equal(raw, []byte{0xDE, 0xAD, 0xBE, 0xEF}); diff != nil {
		t.Errorf("byte array field did not round trip: %v", diff)
	}

	if r.Remaining() != 0 {
		t.Errorf("expected cursor at end of frame, %d bytes remain", r.Remaining())
	}
}

func TestPacket_TruncatedReads(t *testing.T) {
	tests := []struct {
		name string
		read func(p *Packet) error
		data []byte
	}{
		{
			name: "bool from empty buffer",
			read: func(p *Packet) error { _, err := p.ReadBool(); return err },
			data: []byte{},
		},
		{
			name: "short with one byte",
			read: func(p *Packet) error { _, err := p.ReadShort(); return err },
			data: []byte{0x01},
		},
		{
			name: "int with three bytes",
			read: func(p *Packet) error { _, err := p.ReadInt(); return err },
			data: []byte{0x01, 0x02, 0x03},
		},
		{
			name: "string length exceeds remainder",
			read: func(p *Packet) error { _, err := p.ReadString(); return err },
			data: []byte{0x10, 0x00, 0x00, 0x00, 'a', 'b'},
		},
		{
			name: "negative byte array length",
			read: func(p *Packet) error { _, err := p.ReadBytes(); return err },
			data: []byte{0xFF, 0xFF, 0xFF, 0xFF},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.data))
			if !errors.Is(err, ErrTruncatedPacket) {
				t.Errorf("expected ErrTruncatedPacket, got %v", err)
			}
		})
	}
}
