package wire

import "fmt"

// MockGenerator produces synthetic flopoint-style waveforms for serial
// sessions running in a test-write role, standing in for a real flopoint
// board. Grounded on the original's serial_write_nonsense_session, which
// kept an internal_counter and generated a new payload on each timer tick;
// this rendition makes that counter explicit and deterministic so tests can
// assert on the exact sequence produced.
type MockGenerator struct {
	name    string
	samples int
	counter int32
}

// NewMockGenerator returns a generator that labels every waveform with name
// and produces waveforms of the given sample count.
func NewMockGenerator(name string, samples int) *MockGenerator {
	if samples <= 0 {
		samples = 8
	}
	return &MockGenerator{name: name, samples: samples}
}

// Next returns the next synthetic message: a named waveform whose samples
// are a counter-derived ramp (counter, counter+1, ...), advancing the
// generator's internal counter by one per call.
func (g *MockGenerator) Next() Message {
	waveform := make([]int32, g.samples)
	for i := range waveform {
		waveform[i] = g.counter + int32(i)
	}
	g.counter++

	return Message{
		Name:     g.name,
		Waveform: waveform,
	}
}

// Name reports the message name this generator labels its output with.
func (g *MockGenerator) Name() string { return g.name }

// String implements fmt.Stringer.
func (g *MockGenerator) String() string {
	return fmt.Sprintf("mock(%s, %d samples)", g.name, g.samples)
}
