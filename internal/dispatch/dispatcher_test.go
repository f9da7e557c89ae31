package dispatch

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smchurchill/dewd/internal/session"
	"github.com/smchurchill/dewd/internal/wire"
)

// noopPort satisfies session.Port without touching real hardware; used only
// to give AddSerialPort something to hang counters off of in tests that
// drive delivery directly via RecordDecoded.
type noopPort struct{}

func (noopPort) Read(p []byte) (int, error)         { return 0, nil }
func (noopPort) Write(p []byte) (int, error)        { return len(p), nil }
func (noopPort) Close() error                       { return nil }
func (noopPort) SetReadTimeout(time.Duration) error { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, context.Context, context.CancelFunc) {
	t.Helper()
	d := New(wire.DefaultCodec{}, 16, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return d, ctx, cancel
}

func connectClient(t *testing.T, d *Dispatcher) (client net.Conn, reader *bufio.Reader) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	n := session.NewNetwork(serverConn, d, nil)
	d.RegisterNetwork(n)
	go n.Start()
	t.Cleanup(func() { clientConn.Close() })
	return clientConn, bufio.NewReader(clientConn)
}

func readLineWithTimeout(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return ""
	}
}

func TestDispatcher_S1_HelpCommand(t *testing.T) {
	d, _, cancel := newTestDispatcher(t)
	defer cancel()
	d.BuildCommandTree()

	client, reader := connectClient(t, d)
	_, err := client.Write([]byte("help\n"))
	require.NoError(t, err)

	line := readLineWithTimeout(t, reader)
	assert.True(t, strings.HasPrefix(line, "help called."))
}

func TestDispatcher_S2_GetRxOnFreshPort(t *testing.T) {
	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	s := session.NewSerial(noopPort{}, session.SerialConfig{
		Name: "/dev/ttyS5",
		Role: session.RolePollRead,
	}, d, nil)
	d.AddSerialPort(s, "/dev/ttyS5")
	d.BuildCommandTree()

	client, reader := connectClient(t, d)
	_, err := client.Write([]byte("get rx /dev/ttyS5\n"))
	require.NoError(t, err)

	line := readLineWithTimeout(t, reader)
	assert.Equal(t, "0\n", line)
}

func TestDispatcher_S3_S4_SubscriptionFanOut(t *testing.T) {
	d, _, cancel := newTestDispatcher(t)
	defer cancel()

	s := session.NewSerial(noopPort{}, session.SerialConfig{
		Name: "/dev/ttyS0",
		Role: session.RoleReadWrite,
	}, d, nil)
	d.AddSerialPort(s, "2of09")
	d.BuildCommandTree()

	clientA, readerA := connectClient(t, d)
	clientB, readerB := connectClient(t, d)

	_, err := clientA.Write([]byte("subscribe to ascii_waveforms\n"))
	require.NoError(t, err)
	require.Equal(t, "subscribed to ascii_waveforms\n", readLineWithTimeout(t, readerA))

	_, err = clientB.Write([]byte("subscribe to 2of09\n"))
	require.NoError(t, err)
	require.Equal(t, "subscribed to 2of09\n", readLineWithTimeout(t, readerB))

	codec := wire.DefaultCodec{}
	msg := wire.Message{Name: "2of09", Waveform: []int32{1, 2, 3}}
	encoded, err := codec.Encode(msg)
	require.NoError(t, err)

	d.RecordDecoded("/dev/ttyS0", session.Decoded{Message: msg, Encoded: encoded})

	lineA := readLineWithTimeout(t, readerA)
	assert.Equal(t, "\t1\t2\t3\n", lineA)

	bufB := make([]byte, len(encoded))
	clientB.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := readerB.Read(bufB)
	require.NoError(t, err)
	assert.Equal(t, encoded[:n], bufB[:n])
}

func TestDispatcher_S5_RingCapacityEviction(t *testing.T) {
	d, _, cancel := newTestDispatcher(t) // ring capacity 16 from newTestDispatcher
	defer cancel()
	d.BuildCommandTree()

	codec := wire.DefaultCodec{}
	for i := 0; i < 21; i++ {
		msg := wire.Message{Name: "chX", Waveform: []int32{int32(i)}}
		encoded, err := codec.Encode(msg)
		require.NoError(t, err)
		d.RecordDecoded("/dev/ttyS0", session.Decoded{Message: msg, Encoded: encoded})
	}

	client, reader := connectClient(t, d)
	_, err := client.Write([]byte("get stored_pbs\n"))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	buf := make([]byte, 4096)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, _ := reader.Read(buf)

	count := 0
	rest := buf[:n]
	for len(rest) > 0 {
		outcome := codec.Parse(rest)
		require.Equal(t, wire.Ok, outcome.Result)
		rest = rest[outcome.Consumed:]
		count++
	}
	assert.Equal(t, 16, count)
}

func TestDispatcher_Invariant1_RemovalClearsAllSubscriptions(t *testing.T) {
	d, _, cancel := newTestDispatcher(t)
	defer cancel()
	d.BuildCommandTree()

	client, reader := connectClient(t, d)
	_, err := client.Write([]byte("subscribe to raw_waveforms\n"))
	require.NoError(t, err)
	readLineWithTimeout(t, reader)

	client.Close()

	require.Eventually(t, func() bool {
		result := make(chan bool, 1)
		d.post(func() {
			for _, subs := range d.subscriptions {
				if len(subs) != 0 {
					result <- false
					return
				}
			}
			result <- true
		})
		return <-result
	}, time.Second, 10*time.Millisecond)
}
