package dispatch

import (
	"github.com/smchurchill/dewd/internal/session"
)

// deliver implements spec §4.6: store the encoded bytes in the ring, then
// fan the decoded record out to every interested channel. Runs only on the
// reactor goroutine (called from RecordDecoded's posted closure).
func (d *Dispatcher) deliver(portName string, decoded session.Decoded) {
	d.ring.Push(decoded.Encoded)

	d.fanOut(ChannelRawWaveforms, decoded.Message.RawWaveform())
	d.fanOut(ChannelAsciiWaveforms, decoded.Message.AsciiWaveform())
	d.fanOut(ChannelProtobufAll, decoded.Encoded)

	d.fanOut(decoded.Message.Name, decoded.Encoded)

	if d.sink != nil {
		d.sink.LogMessage("%s: %s", portName, decoded.Message.String())
	}
}

// fanOut enqueues payload to every current subscriber of channel. A channel
// with no subscribers, or one that doesn't exist (a record name with no
// per-name channel, since channels are frozen at startup), is simply a
// no-op.
func (d *Dispatcher) fanOut(channel string, payload []byte) {
	subs, ok := d.subscriptions[channel]
	if !ok {
		return
	}
	for _, n := range subs {
		n.EnqueueWrite(payload)
	}
}

// subscribe adds caller to channel's subscriber set; a no-op if already
// present, matching spec §4.7's idempotence requirement.
func (d *Dispatcher) subscribe(caller *session.Network, channel string) {
	subs, ok := d.subscriptions[channel]
	if !ok {
		return
	}
	subs[caller.ID()] = caller
}

// unsubscribe removes caller from channel's subscriber set; a no-op if
// absent.
func (d *Dispatcher) unsubscribe(caller *session.Network, channel string) {
	subs, ok := d.subscriptions[channel]
	if !ok {
		return
	}
	delete(subs, caller.ID())
}
