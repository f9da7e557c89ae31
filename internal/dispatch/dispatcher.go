// Package dispatch implements the central switchboard: it owns every
// session, the subscription table, the recent-message ring, and the
// command tree, and is the only component whose state is mutated from
// handler callbacks — all of that mutation happens on one goroutine, the
// reactor loop in Run.
package dispatch

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/smchurchill/dewd/internal/cmdtree"
	"github.com/smchurchill/dewd/internal/session"
	"github.com/smchurchill/dewd/internal/wire"
)

// Fixed channel names, closed over the format-transformed fan-outs; every
// other channel name comes from a serial-reading port's declared message
// name.
const (
	ChannelRawWaveforms   = "raw_waveforms"
	ChannelAsciiWaveforms = "ascii_waveforms"
	ChannelProtobufAll    = "protobuf_all"
)

// serialPort tracks one configured serial session alongside the metadata
// the command tree and `get` actions need about it.
type serialPort struct {
	session     *session.Serial
	messageName string // per-name channel created for this port at registration
	dead        bool   // set once the session reports a fatal I/O error
}

// Dispatcher is the reactor: one goroutine (Run) owns every field below and
// is the only goroutine that ever reads or writes them. Every other
// goroutine (session readers/writers, the TCP acceptor) communicates with
// it exclusively by calling the Reporter methods or RegisterNetwork, each
// of which only enqueues an event and returns.
type Dispatcher struct {
	logger *log.Logger
	codec  wire.Codec

	ring *Ring
	root *cmdtree.Node

	networkSessions map[session.ID]*session.Network
	subscriptions   map[string]map[session.ID]*session.Network

	serialPorts    map[string]*serialPort // keyed by device name
	readPortOrder  []string               // serial-reading ports, registration order
	writePortOrder []string               // serial-writing ports, registration order
	channelOrder   []string               // insertion order of all channel names

	events chan func()

	sink MessageSink
}

// MessageSink is the append-only logging surface for decoded and failed
// records, kept separate from the charmbracelet logger since spec treats
// these as plain append-only files (`dispatch.message.log`,
// `dispatch.failure.log`), not structured log lines.
type MessageSink interface {
	LogMessage(format string, args ...any)
	LogFailure(format string, args ...any)
}

// New constructs an empty dispatcher. Call AddSerialPort for every
// configured device, then BuildCommandTree, then Run.
func New(codec wire.Codec, ringCapacity int, logger *log.Logger, sink MessageSink) *Dispatcher {
	if codec == nil {
		codec = wire.DefaultCodec{}
	}
	d := &Dispatcher{
		logger:          logger,
		codec:           codec,
		ring:            NewRing(ringCapacity),
		networkSessions: make(map[session.ID]*session.Network),
		subscriptions:   make(map[string]map[session.ID]*session.Network),
		serialPorts:     make(map[string]*serialPort),
		events:          make(chan func(), 256),
		sink:            sink,
	}
	d.addChannel(ChannelRawWaveforms)
	d.addChannel(ChannelAsciiWaveforms)
	d.addChannel(ChannelProtobufAll)
	return d
}

// Run is the reactor loop: the only goroutine that ever touches dispatcher
// state. It drains events until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-d.events:
			fn()
		}
	}
}

// post enqueues fn to run on the reactor goroutine. Every Reporter method
// and every externally-triggered dispatcher operation goes through post so
// no caller ever touches dispatcher state off the reactor goroutine.
func (d *Dispatcher) post(fn func()) {
	d.events <- fn
}

// AddSerialPort registers a configured serial session before the first
// BuildCommandTree call. For a reading port, messageName is added as a
// per-name channel; records whose name equals it are fanned out there. `get
// rx <name>` and friends identify the port by its device name, s.Name().
func (d *Dispatcher) AddSerialPort(s *session.Serial, messageName string) {
	port := &serialPort{session: s, messageName: messageName}
	d.serialPorts[s.Name()] = port

	if s.Role().Reads() {
		d.readPortOrder = append(d.readPortOrder, s.Name())
		d.addChannel(messageName)
	}
	if s.Role().Writes() {
		d.writePortOrder = append(d.writePortOrder, s.Name())
	}
}

func (d *Dispatcher) addChannel(name string) {
	if _, exists := d.subscriptions[name]; exists {
		return
	}
	d.subscriptions[name] = make(map[session.ID]*session.Network)
	d.channelOrder = append(d.channelOrder, name)
}

// RegisterNetwork adds a newly accepted network session to the dispatcher's
// table. Safe to call from the TCP acceptor goroutine.
func (d *Dispatcher) RegisterNetwork(n *session.Network) {
	d.post(func() {
		d.networkSessions[n.ID()] = n
	})
}

// SessionRemoved implements session.Reporter: removes n from every
// subscription set and the session table, atomically with respect to any
// in-flight delivery (both run on the reactor goroutine).
func (d *Dispatcher) SessionRemoved(h session.Handle) {
	d.post(func() {
		n, ok := h.(*session.Network)
		if !ok {
			return
		}
		for _, subs := range d.subscriptions {
			delete(subs, n.ID())
		}
		delete(d.networkSessions, n.ID())
	})
}

// HandleSentence implements session.Reporter: walks the command tree and
// invokes whatever node the walk stops at, passing the calling session
// through to the resolved action exactly as the original command graph's
// `operator()(nsp in)` does.
func (d *Dispatcher) HandleSentence(h session.Handle, tokens []string) {
	d.post(func() {
		n, ok := h.(*session.Network)
		if !ok || d.root == nil {
			return
		}
		resolved := d.root.Walk(tokens)
		response := resolved.Invoke(n)
		n.EnqueueWrite([]byte(response))
	})
}

// RecordDecoded implements session.Reporter.
func (d *Dispatcher) RecordDecoded(portName string, decoded session.Decoded) {
	d.post(func() {
		d.deliver(portName, decoded)
	})
}

// DecodeFailed implements session.Reporter.
func (d *Dispatcher) DecodeFailed(portName string, truncated bool) {
	d.post(func() {
		if d.sink != nil {
			kind := "resync"
			if truncated {
				kind = "safety-cap truncation"
			}
			d.sink.LogFailure("decode failure on %s: %s", portName, kind)
		}
		if d.logger != nil {
			d.logger.Warn("decode failure", "port", portName, "truncated", truncated)
		}
	})
}

// SerialDead implements session.Reporter: records the fatal transition in
// the failure sink and logs it. The session itself has already stopped
// retrying and closed its port; the dispatcher takes no further action
// since spec §7 requires only that the process stay alive and the event
// be observable, not automatic reconnection.
func (d *Dispatcher) SerialDead(portName string) {
	d.post(func() {
		if port, ok := d.serialPorts[portName]; ok {
			port.dead = true
		}
		if d.sink != nil {
			d.sink.LogFailure("serial port %s marked dead: fatal I/O error", portName)
		}
		if d.logger != nil {
			d.logger.Error("serial port dead", "port", portName)
		}
	})
}
