package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	mu        sync.Mutex
	sentences [][]string
	removed   []Handle
	records   []Decoded
	failures  int
	deadPorts []string
}

func (f *fakeReporter) HandleSentence(h Handle, tokens []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentences = append(f.sentences, tokens)
}

func (f *fakeReporter) SessionRemoved(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, h)
}

func (f *fakeReporter) RecordDecoded(portName string, decoded Decoded) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, decoded)
}

func (f *fakeReporter) DecodeFailed(portName string, truncated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
}

func (f *fakeReporter) SerialDead(portName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadPorts = append(f.deadPorts, portName)
}

func (f *fakeReporter) sentenceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sentences)
}

func (f *fakeReporter) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

func TestNetwork_ParsesLinesIntoSentences(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reporter := &fakeReporter{}
	n := NewNetwork(server, reporter, nil)
	go n.Start()

	_, err := client.Write([]byte("help\r\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte("get rx /dev/ttyS5\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return reporter.sentenceCount() >= 2 }, time.Second, 5*time.Millisecond)

	reporter.mu.Lock()
	assert.Equal(t, []string{"help"}, reporter.sentences[0])
	assert.Equal(t, []string{"get", "rx", "/dev/ttyS5"}, reporter.sentences[1])
	reporter.mu.Unlock()
}

func TestNetwork_BlankLineReachesHandleSentenceAsEmptySlice(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reporter := &fakeReporter{}
	n := NewNetwork(server, reporter, nil)
	go n.Start()

	_, err := client.Write([]byte("\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte("help\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return reporter.sentenceCount() >= 2 }, time.Second, 5*time.Millisecond)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Empty(t, reporter.sentences[0])
	assert.Equal(t, []string{"help"}, reporter.sentences[1])
}

func TestNetwork_ReportsRemovalOnPeerClose(t *testing.T) {
	client, server := net.Pipe()

	reporter := &fakeReporter{}
	n := NewNetwork(server, reporter, nil)
	go n.Start()

	client.Close()

	require.Eventually(t, func() bool { return reporter.removedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNetwork_EnqueueWriteDeliversBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reporter := &fakeReporter{}
	n := NewNetwork(server, reporter, nil)
	go n.Start()
	defer n.Close()

	n.EnqueueWrite([]byte("hello\n"))

	buf := make([]byte, 6)
	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(buf))
}

func TestNetwork_CloseIsIdempotent(t *testing.T) {
	_, server := net.Pipe()
	reporter := &fakeReporter{}
	n := NewNetwork(server, reporter, nil)

	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())
}
