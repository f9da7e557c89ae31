package session

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"github.com/smchurchill/dewd/internal/wire"
)

// bufferLength is the read chunk size used for every serial read call,
// matching the original's BUFFER_LENGTH constant.
const bufferLength = 2048

// Port is the narrow capability Serial needs from an open device, so tests
// can substitute a fake without opening a real tty.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// OpenPort opens name at baud using go.bug.st/serial, returning a Port.
func OpenPort(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial is a flopoint board's device session: it reads (if its role
// reads), decodes frames through an injected wire.Codec, optionally runs a
// polling timer to bound read latency, and accepts writes (if its role
// writes) — including, for the two test roles, a continuous synthetic
// waveform generator pacing its own writes.
type Serial struct {
	name     string
	role     Role
	port     Port
	reporter Reporter
	logger   *log.Logger

	decoder      *Decoder
	pollInterval time.Duration
	generator    *wire.MockGenerator
	genInterval  time.Duration

	queue  *writeQueue
	closed atomic.Bool
	dead   atomic.Bool

	rxBytes             atomic.Int64
	txBytes             atomic.Int64
	messagesReceivedTot atomic.Int64
	messagesLostTot     atomic.Int64
}

// SerialConfig configures a Serial session at construction.
type SerialConfig struct {
	Name             string
	Role             Role
	Codec            wire.Codec
	MaxFrameLength   int
	PollInterval     time.Duration // used when Role.Polls()
	Generator        *wire.MockGenerator
	GeneratorPacing  time.Duration
	MaxWriteQueueLen int
}

// NewSerial constructs a serial session around an already-open port.
func NewSerial(port Port, cfg SerialConfig, reporter Reporter, logger *log.Logger) *Serial {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	genInterval := cfg.GeneratorPacing
	if genInterval <= 0 {
		genInterval = 100 * time.Millisecond
	}
	codec := cfg.Codec
	if codec == nil {
		codec = wire.DefaultCodec{}
	}

	return &Serial{
		name:         cfg.Name,
		role:         cfg.Role,
		port:         port,
		reporter:     reporter,
		logger:       logger,
		decoder:      NewDecoder(codec, cfg.MaxFrameLength),
		pollInterval: pollInterval,
		generator:    cfg.Generator,
		genInterval:  genInterval,
		queue:        newWriteQueue(cfg.MaxWriteQueueLen),
	}
}

// ID implements Handle using the device name as a stable identifier: serial
// sessions are created once at startup and never destroyed before exit, so
// the name itself is a fine stable key.
func (s *Serial) ID() ID { return ID(s.name) }

// Name returns the device path this session wraps.
func (s *Serial) Name() string { return s.name }

// Role reports the role this session was opened with.
func (s *Serial) Role() Role { return s.role }

// RxBytes, TxBytes, MessagesReceivedTot, MessagesLostTot expose the
// counters spec §3 assigns to a serial session, read by `get` command
// actions running on the dispatcher goroutine while writers run elsewhere.
func (s *Serial) RxBytes() int64             { return s.rxBytes.Load() }
func (s *Serial) TxBytes() int64             { return s.txBytes.Load() }
func (s *Serial) MessagesReceivedTot() int64 { return s.messagesReceivedTot.Load() }
func (s *Serial) MessagesLostTot() int64     { return s.messagesLostTot.Load() }

// Dead reports whether a fatal I/O error has already taken this session
// out of service (spec §4.2/§7: device gone).
func (s *Serial) Dead() bool { return s.dead.Load() }

// EnqueueWrite implements Handle.
func (s *Serial) EnqueueWrite(data []byte) {
	if s.closed.Load() || !s.role.Writes() {
		return
	}
	s.queue.push(data)
}

// Close implements Handle.
func (s *Serial) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}

// Run drives this session's I/O loops until ctx is canceled or the port
// fails fatally. Serial sessions never self-terminate on transient errors
// (spec §4.2): they log and retry. A fatal error (device gone) instead
// closes the port, reports the session dead to the reporter, and stops
// the loop that hit it; sibling loops (e.g. a write loop on a read-fatal
// read-write session) wind down on their own next I/O attempt.
func (s *Serial) Run(ctx context.Context) {
	var started []func()

	if s.role.Writes() {
		started = append(started, func() { s.writeLoop(ctx) })
	}
	if s.role.TestWrites() && s.generator != nil {
		started = append(started, func() { s.generateLoop(ctx) })
	}
	if s.role.Reads() {
		if s.role.Polls() {
			started = append(started, func() { s.pollReadLoop(ctx) })
		} else {
			started = append(started, func() { s.readLoop(ctx) })
		}
	}

	done := make(chan struct{}, len(started))
	for _, fn := range started {
		fn := fn
		go func() {
			fn()
			done <- struct{}{}
		}()
	}
	for range started {
		<-done
	}
}

// readLoop continuously reads without a poll timer (read-write / read-write-test roles).
func (s *Serial) readLoop(ctx context.Context) {
	buf := make([]byte, bufferLength)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			s.handleRead(buf[:n])
		}
		if err != nil {
			if s.markDeadIfFatal(err) {
				return
			}
			s.logTransient(err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// pollReadLoop runs the periodic-cancel-and-rearm poll variant (spec §4.2):
// deadlines are realigned forward by repeatedly adding the interval rather
// than recomputed from "now", so a stall never produces a burst of
// catch-up ticks — the Go rendition of the original's
// `while(dead_ < now_) dead_ += timeout_`.
func (s *Serial) pollReadLoop(ctx context.Context) {
	buf := make([]byte, bufferLength)
	deadline := time.Now().Add(s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = s.port.SetReadTimeout(time.Until(deadline))
		n, err := s.port.Read(buf)
		if n > 0 {
			s.handleRead(buf[:n])
		}
		if err != nil {
			if s.markDeadIfFatal(err) {
				return
			}
			s.logTransient(err)
		}

		now := time.Now()
		for !deadline.After(now) {
			deadline = deadline.Add(s.pollInterval)
		}
	}
}

func (s *Serial) handleRead(data []byte) {
	s.rxBytes.Add(int64(len(data)))
	result := s.decoder.Feed(data)

	for _, rec := range result.Records {
		s.messagesReceivedTot.Add(1)
		s.reporter.RecordDecoded(s.name, rec)
	}
	for i := 0; i < result.ResyncEvents; i++ {
		s.messagesLostTot.Add(1)
		s.reporter.DecodeFailed(s.name, false)
	}
	for i := 0; i < result.Truncations; i++ {
		s.messagesLostTot.Add(1)
		s.reporter.DecodeFailed(s.name, true)
	}
}

func (s *Serial) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, ok := s.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.queue.notify:
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		n, err := s.port.Write(data)
		if n > 0 {
			s.txBytes.Add(int64(n))
		}
		if err != nil {
			if s.markDeadIfFatal(err) {
				return
			}
			s.logTransient(err)
		}
	}
}

// generateLoop paces synthetic waveforms onto this session's own write
// queue for the two test roles, grounded on the original's
// serial_write_nonsense_session timer-driven pacing.
func (s *Serial) generateLoop(ctx context.Context) {
	codec := wire.DefaultCodec{}
	ticker := time.NewTicker(s.genInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := s.generator.Next()
			encoded, err := codec.Encode(msg)
			if err != nil {
				continue
			}
			s.queue.push(encoded)
		}
	}
}

func (s *Serial) logTransient(err error) {
	if s.logger != nil {
		s.logger.Debug("serial I/O error", "port", s.name, "err", err)
	}
}

// isFatal classifies a Read/Write error as a permanent device failure
// rather than a recoverable hiccup. go.bug.st/serial reports a plain read
// timeout as (0, nil), not an error, so any error it does return already
// indicates a real fault; io.EOF and fs.ErrClosed cover the same signal
// from Port fakes and from an already-closed OS file handle.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr)
}

// markDeadIfFatal classifies err and, on a fatal classification, closes
// the port and reports the session dead to the dispatcher exactly once.
// Returns whether the caller's loop should stop retrying.
func (s *Serial) markDeadIfFatal(err error) bool {
	if !isFatal(err) {
		return false
	}
	if s.dead.Swap(true) {
		return true
	}
	if s.logger != nil {
		s.logger.Warn("serial port failed fatally, marking session dead", "port", s.name, "err", err)
	}
	_ = s.Close()
	s.reporter.SerialDead(s.name)
	return true
}
