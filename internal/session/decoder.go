package session

import "github.com/smchurchill/dewd/internal/wire"

// Decoded pairs a successfully parsed record with the exact encoded bytes
// that produced it, since the dispatcher's delivery path needs both: the
// record for ascii/raw rendering and the original bytes for the ring and
// the protobuf_all/per-name channels.
type Decoded struct {
	Message wire.Message
	Encoded []byte
}

// FeedResult summarizes one call to Decoder.Feed. LostMessages is the total
// count to add to messages_lost_tot: one per codec-reported resync event,
// plus one per safety-cap truncation — both are "a message was lost"
// events, just with different triggers.
type FeedResult struct {
	Records      []Decoded
	ResyncEvents int
	Truncations  int
	LostMessages int
}

// Decoder accumulates bytes from a serial session's read completions in a
// rolling buffer and repeatedly drives an injected wire.Codec across it,
// exactly per spec §4.3: Ok advances and yields a record, NeedMore stops
// and waits for more bytes, Resync(skip) counts one lost message and skips
// forward. A safety cap bounds the buffer so a garbled stream that never
// decodes cannot grow it without limit.
type Decoder struct {
	codec  wire.Codec
	buf    []byte
	maxLen int
}

// NewDecoder returns a decoder driven by codec, capping its rolling buffer
// at maxLen bytes (the original's MAX_FRAME_LENGTH, default 2048).
func NewDecoder(codec wire.Codec, maxLen int) *Decoder {
	if maxLen <= 0 {
		maxLen = 2048
	}
	return &Decoder{codec: codec, maxLen: maxLen}
}

// Feed appends newly read bytes to the rolling buffer and drains as many
// complete records as the buffer currently holds.
func (d *Decoder) Feed(data []byte) FeedResult {
	d.buf = append(d.buf, data...)

	var result FeedResult
	for {
		outcome := d.codec.Parse(d.buf)
		switch outcome.Result {
		case wire.Ok:
			encoded := make([]byte, outcome.Consumed)
			copy(encoded, d.buf[:outcome.Consumed])
			d.buf = d.buf[outcome.Consumed:]
			result.Records = append(result.Records, Decoded{
				Message: outcome.Message,
				Encoded: encoded,
			})
		case wire.Resync:
			skip := outcome.Skip
			if skip <= 0 {
				skip = 1
			}
			if skip > len(d.buf) {
				skip = len(d.buf)
			}
			d.buf = d.buf[skip:]
			result.ResyncEvents++
			result.LostMessages++
		case wire.NeedMore:
			if len(d.buf) >= d.maxLen {
				half := len(d.buf) / 2
				d.buf = d.buf[half:]
				result.Truncations++
				result.LostMessages++
				continue
			}
			return result
		}
	}
}

// Buffered reports how many bytes are currently held in the rolling buffer,
// for diagnostics and tests.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
