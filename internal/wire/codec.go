package wire

import (
	"encoding/binary"
	"errors"
)

// Outcome classifies the result of a single Parse call.
type Outcome int

const (
	// Ok means a complete record was decoded.
	Ok Outcome = iota
	// NeedMore means the buffer holds a prefix of a record; wait for more
	// bytes before trying again.
	NeedMore
	// Resync means the buffer could not be interpreted at its current
	// position; skip forward and retry.
	Resync
)

// ParseOutcome is the result of one Codec.Parse call. Exactly one of the
// three shapes below is meaningful, selected by Result:
//
//	Ok:       Message and Consumed are populated.
//	NeedMore: nothing else is populated.
//	Resync:   Skip is populated (>= 1).
type ParseOutcome struct {
	Result   Outcome
	Message  Message
	Consumed int
	Skip     int
}

// Codec is the injectable wire-format oracle the frame decoder delegates
// to. Implementations must be side-effect free and must not retain the
// passed-in slice past the call.
type Codec interface {
	// Parse attempts to extract one record from the front of buf.
	Parse(buf []byte) ParseOutcome

	// Encode renders a Message back into its wire representation, used for
	// the test-write synthetic producers and for round-trip tests.
	Encode(Message) ([]byte, error)
}

// ErrNameTooLong is returned by DefaultCodec.Encode when a message name
// does not fit the codec's one-byte length prefix.
var ErrNameTooLong = errors.New("wire: message name longer than 255 bytes")

// DefaultCodec is a minimal, self-contained binary framing:
//
//	1 byte  magic (magicByte)
//	1 byte  name length N
//	N bytes name (ASCII)
//	2 bytes sample count C, big-endian
//	4*C bytes samples, each a big-endian int32
//
// spec.md treats the wire format as an opaque, out-of-scope oracle; this
// framing is the smallest thing that lets every other dispatcher component
// (decoder, resync counters, ring, channel fan-out) be exercised without
// depending on a specific embedded-board protocol. See DESIGN.md.
type DefaultCodec struct{}

const magicByte = 0xF1

// Parse implements Codec.
func (DefaultCodec) Parse(buf []byte) ParseOutcome {
	if len(buf) == 0 {
		return ParseOutcome{Result: NeedMore}
	}
	if buf[0] != magicByte {
		return ParseOutcome{Result: Resync, Skip: 1}
	}
	if len(buf) < 2 {
		return ParseOutcome{Result: NeedMore}
	}
	nameLen := int(buf[1])
	headerLen := 2 + nameLen + 2
	if len(buf) < headerLen {
		return ParseOutcome{Result: NeedMore}
	}
	name := string(buf[2 : 2+nameLen])
	count := int(binary.BigEndian.Uint16(buf[2+nameLen : headerLen]))
	frameLen := headerLen + count*4
	if len(buf) < frameLen {
		return ParseOutcome{Result: NeedMore}
	}

	waveform := make([]int32, count)
	for i := 0; i < count; i++ {
		off := headerLen + i*4
		waveform[i] = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	}

	return ParseOutcome{
		Result:   Ok,
		Message:  Message{Name: name, Waveform: waveform},
		Consumed: frameLen,
	}
}

// Encode implements Codec.
func (DefaultCodec) Encode(m Message) ([]byte, error) {
	if len(m.Name) > 255 {
		return nil, ErrNameTooLong
	}
	if len(m.Waveform) > 0xFFFF {
		return nil, errors.New("wire: waveform longer than 65535 samples")
	}

	out := make([]byte, 0, 2+len(m.Name)+2+4*len(m.Waveform))
	out = append(out, magicByte, byte(len(m.Name)))
	out = append(out, m.Name...)

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(m.Waveform)))
	out = append(out, countBuf[:]...)

	var sampleBuf [4]byte
	for _, sample := range m.Waveform {
		binary.BigEndian.PutUint32(sampleBuf[:], uint32(sample))
		out = append(out, sampleBuf[:]...)
	}

	return out, nil
}
