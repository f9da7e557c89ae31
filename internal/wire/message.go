// Package wire defines the flopoint record type and the injectable wire
// codec used to turn serial byte streams into decoded records.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is a decoded flopoint record: a named waveform of signed 32-bit
// samples.
type Message struct {
	Name     string
	Waveform []int32
}

// AsciiWaveform renders the waveform as tab-separated decimal samples
// followed by a trailing newline, matching the "ascii_waveforms" channel
// format.
func (m Message) AsciiWaveform() []byte {
	var b strings.Builder
	for _, sample := range m.Waveform {
		b.WriteByte('\t')
		b.WriteString(strconv.FormatInt(int64(sample), 10))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// RawWaveform renders the waveform for the "raw_waveforms" channel: every
// sample as a tab followed by its four constituent decimal byte values
// (most significant first) concatenated with no separators, the whole blob
// terminated by a newline. This is
// kept bit-compatible with the original flopoint dispatcher rather than a
// cleaner encoding; see DESIGN.md.
func (m Message) RawWaveform() []byte {
	var b strings.Builder
	for _, sample := range m.Waveform {
		b.WriteByte('\t')
		u := uint32(sample)
		b.WriteString(strconv.Itoa(int((u >> 24) & 0xFF)))
		b.WriteString(strconv.Itoa(int((u >> 16) & 0xFF)))
		b.WriteString(strconv.Itoa(int((u >> 8) & 0xFF)))
		b.WriteString(strconv.Itoa(int(u & 0xFF)))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// String implements fmt.Stringer for log lines.
func (m Message) String() string {
	return fmt.Sprintf("%s[%d samples]", m.Name, len(m.Waveform))
}
