package session

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Network is a TCP client connection: inbound bytes are accumulated and
// split into newline-terminated sentences handed to the dispatcher;
// outbound bytes are raw blobs produced by command actions and delivery
// fan-out, queued and drained by a dedicated writer goroutine so enqueueing
// never blocks the reactor, matching spec §4.2's network-session contract.
type Network struct {
	id       ID
	conn     net.Conn
	reporter Reporter
	logger   *log.Logger

	queue   *writeQueue
	closed  atomic.Bool
	started time.Time
}

// NewNetwork wraps conn as a network session reporting to reporter; it does
// not register the session anywhere. Call Start to begin its read and
// write loops.
func NewNetwork(conn net.Conn, reporter Reporter, logger *log.Logger) *Network {
	return &Network{
		id:       NewID(),
		conn:     conn,
		reporter: reporter,
		logger:   logger,
		queue:    newWriteQueue(defaultMaxQueueBytes),
		started:  time.Now(),
	}
}

// ID implements Handle.
func (n *Network) ID() ID { return n.id }

// RemoteAddr reports the peer's address description.
func (n *Network) RemoteAddr() string {
	return n.conn.RemoteAddr().String()
}

// StartedAt reports when this session was accepted.
func (n *Network) StartedAt() time.Time { return n.started }

// EnqueueWrite implements Handle: appends data to the outbound queue,
// never blocking and never reordering relative to other enqueued writes.
func (n *Network) EnqueueWrite(data []byte) {
	if n.closed.Load() {
		return
	}
	n.queue.push(data)
}

// Close implements Handle: safe to call more than once.
func (n *Network) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	select {
	case n.queue.notify <- struct{}{}:
	default:
	}
	return n.conn.Close()
}

// Start launches the read loop (blocking the calling goroutine) and the
// write loop (in a new goroutine). Returns once the connection is closed
// for any reason, after reporting removal to the reporter exactly once.
func (n *Network) Start() {
	go n.writeLoop()
	n.readLoop()
}

func (n *Network) readLoop() {
	scanner := bufio.NewScanner(n.conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		n.reporter.HandleSentence(n, strings.Fields(line))
	}

	n.Close()
	n.reporter.SessionRemoved(n)
}

func (n *Network) writeLoop() {
	for {
		data, ok := n.queue.pop()
		if !ok {
			if n.closed.Load() {
				return
			}
			<-n.queue.notify
			continue
		}
		if _, err := n.conn.Write(data); err != nil {
			if n.logger != nil {
				n.logger.Debug("network write failed", "session", n.id, "err", err)
			}
			return
		}
	}
}
