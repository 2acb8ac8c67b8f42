package protocol

import (
	"encoding/binary"
	"io"
	"math"
)

// idSlotSize is the fixed width of an identifier in the legacy layout.
const idSlotSize = MaxIDLength

// encoder appends little-endian fields to a buffer.
type encoder struct {
	buf []byte
}

func newEncoder(kind Kind) *encoder {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.writeByte(legacyTypes[kind])
	return e
}

func (e *encoder) bytes() []byte {
	return e.buf
}

func (e *encoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.writeByte(1)
		return
	}
	e.writeByte(0)
}

func (e *encoder) writeUint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) writeFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *encoder) writeRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

// writeString writes a u8 length prefix and the string bytes. Callers
// check the length first.
func (e *encoder) writeString(s string) {
	e.writeByte(byte(len(s)))
	e.buf = append(e.buf, s...)
}

// writeID writes a u8 length followed by a zero-padded identifier slot.
func (e *encoder) writeID(id string) {
	id = TruncateID(id)
	e.writeByte(byte(len(id)))
	var slot [idSlotSize]byte
	copy(slot[:], id)
	e.buf = append(e.buf, slot[:]...)
}

// decoder reads little-endian fields and reports io.ErrUnexpectedEOF
// when the frame ends early.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) eof() bool {
	return d.pos >= len(d.buf)
}

func (d *decoder) readByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	return b != 0, err
}

func (d *decoder) readBytes(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readUint16() (int, error) {
	b, err := d.readBytes(2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

func (d *decoder) readFloat64() (float64, error) {
	b, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readByte()
	if err != nil {
		return "", err
	}
	b, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readID() (string, error) {
	n, err := d.readByte()
	if err != nil {
		return "", err
	}
	slot, err := d.readBytes(idSlotSize)
	if err != nil {
		return "", err
	}
	if int(n) > idSlotSize {
		n = idSlotSize
	}
	return trimPartialRune(string(slot[:n])), nil
}
