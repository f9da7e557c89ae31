// Package session implements the byte-session abstraction: one bidirectional
// I/O endpoint owning a read-side buffer and a write-side queue, reporting
// events to a dispatcher rather than calling back into dispatcher state
// directly. Two concrete variants exist: Network (a TCP client connection)
// and Serial (a flopoint board's device file, in one of five roles).
package session

import (
	"errors"

	"github.com/google/uuid"
)

// ID uniquely identifies a session for the lifetime of the process. Kept as
// a string so it survives being used as a map key and as a value copied
// freely across goroutine boundaries.
type ID string

// NewID mints a fresh session identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Role selects which of the five serial-session behaviors in spec §4.5 a
// given device path is opened as.
type Role int

const (
	// RolePollRead reads only, driven by a periodic poll timer.
	RolePollRead Role = iota
	// RoleReadWrite reads and accepts writes, no poll timer.
	RoleReadWrite
	// RoleReadWriteTest reads, accepts writes, and additionally paces
	// synthetic waveforms onto its own write queue.
	RoleReadWriteTest
	// RoleWriteTest writes only, pacing synthetic waveforms.
	RoleWriteTest
	// RoleWrite writes only, no synthetic traffic.
	RoleWrite
)

// String renders the role the way config/CLI flags name it.
func (r Role) String() string {
	switch r {
	case RolePollRead:
		return "poll-read"
	case RoleReadWrite:
		return "read-write"
	case RoleReadWriteTest:
		return "read-write-test"
	case RoleWriteTest:
		return "write-test"
	case RoleWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Reads reports whether sessions in this role ever produce decoded records.
func (r Role) Reads() bool {
	return r == RolePollRead || r == RoleReadWrite || r == RoleReadWriteTest
}

// Writes reports whether sessions in this role accept enqueued writes.
func (r Role) Writes() bool {
	return r != RolePollRead
}

// TestWrites reports whether this role paces a synthetic waveform generator.
func (r Role) TestWrites() bool {
	return r == RoleReadWriteTest || r == RoleWriteTest
}

// Polls reports whether this role runs the periodic poll timer.
func (r Role) Polls() bool {
	return r == RolePollRead
}

var (
	// ErrClosed names an operation attempted on a session that has already
	// been closed. Network and Serial do not return it: a repeated Close
	// returns nil and EnqueueWrite on a closed session is a silent no-op.
	ErrClosed = errors.New("session: already closed")
)

// Handle is the narrow capability a command action or fan-out path needs:
// enough to write to a session and to identify it, without exposing its
// concrete type or internal I/O state.
type Handle interface {
	ID() ID
	EnqueueWrite(data []byte)
	Close() error
}
