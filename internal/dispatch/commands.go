package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smchurchill/dewd/internal/cmdtree"
	"github.com/smchurchill/dewd/internal/session"
	"github.com/smchurchill/dewd/internal/wire"
)

// BuildCommandTree (re)builds the dispatcher's command tree from current
// membership: the static help/get/subscribe/unsubscribe region, plus a
// dynamic region of per-port leaves under `get` and per-channel leaves
// under `subscribe to`/`unsubscribe from`. Rebuilds are idempotent given
// unchanged membership (spec §4.8) since the whole tree is rebuilt from
// scratch rather than patched in place.
func (d *Dispatcher) BuildCommandTree() {
	root := cmdtree.New()

	root.Spawn("help", d.buildHelpBranch())
	root.Spawn("get", d.buildGetBranch())
	root.Spawn("subscribe", d.buildSubscribeBranch())
	root.Spawn("unsubscribe", d.buildUnsubscribeBranch())

	d.root = root
}

func stableText(s string) cmdtree.Action {
	return func(any) string { return s }
}

func (d *Dispatcher) buildHelpBranch() *cmdtree.Node {
	help := cmdtree.NewLeaf(stableText("help called.\n"))

	help.Spawn("help", cmdtree.NewLeaf(stableText("help_help called.\n")))

	get := cmdtree.NewLeaf(stableText("get_help called.\n"))
	get.Spawn("rx", cmdtree.NewLeaf(stableText("get_help_rx called.\n")))
	get.Spawn("tx", cmdtree.NewLeaf(stableText("get_help_tx called.\n")))
	get.Spawn("messages_received_tot", cmdtree.NewLeaf(stableText("get_help_messages_received_tot called.\n")))
	get.Spawn("messages_lost_tot", cmdtree.NewLeaf(stableText("get_help_messages_lost_tot called.\n")))
	get.Spawn("ports_for_zabbix", cmdtree.NewLeaf(stableText("get_help_ports_for_zabbix called.\n")))
	help.Spawn("get", get)

	help.Spawn("subscribe", cmdtree.NewLeaf(stableText("subscribe_help() called.\n")))
	help.Spawn("unsubscribe", cmdtree.NewLeaf(stableText("unsubscribe_help called.\n")))

	return help
}

func (d *Dispatcher) buildGetBranch() *cmdtree.Node {
	get := cmdtree.New()
	get.SetAction(stableText("get_help called.\n"))

	get.Spawn("rx", d.buildPortCounterBranch(d.readPortOrder, func(s *session.Serial) int64 { return s.RxBytes() }))
	get.Spawn("tx", d.buildPortCounterBranch(d.writePortOrder, func(s *session.Serial) int64 { return s.TxBytes() }))
	get.Spawn("messages_received_tot", d.buildPortCounterBranch(d.readPortOrder, func(s *session.Serial) int64 { return s.MessagesReceivedTot() }))
	get.Spawn("messages_lost_tot", d.buildPortCounterBranch(d.readPortOrder, func(s *session.Serial) int64 { return s.MessagesLostTot() }))

	get.Spawn("ports_for_zabbix", cmdtree.NewLeaf(func(any) string { return d.portsForZabbix() }))
	get.Spawn("stored_pbs", cmdtree.NewLeaf(func(any) string { return d.storedPbs() }))
	get.Spawn("stored_ascii_waveforms", cmdtree.NewLeaf(func(any) string { return d.storedAsciiWaveforms() }))

	return get
}

// buildPortCounterBranch attaches one leaf per port name in order, each
// reading the given counter off that port's live session.
func (d *Dispatcher) buildPortCounterBranch(portNames []string, read func(*session.Serial) int64) *cmdtree.Node {
	branch := cmdtree.New()
	for _, name := range portNames {
		name := name
		branch.Spawn(name, cmdtree.NewLeaf(func(any) string {
			port, ok := d.serialPorts[name]
			if !ok {
				return "0\n"
			}
			return strconv.FormatInt(read(port.session), 10) + "\n"
		}))
	}
	return branch
}

func (d *Dispatcher) buildSubscribeBranch() *cmdtree.Node {
	subscribe := cmdtree.New()
	subscribe.SetAction(stableText("subscribe_help() called.\n"))
	to := cmdtree.New()
	for _, channel := range d.channelOrder {
		channel := channel
		to.Spawn(channel, cmdtree.NewLeaf(func(caller any) string {
			n, ok := caller.(*session.Network)
			if !ok {
				return ""
			}
			d.subscribe(n, channel)
			return fmt.Sprintf("subscribed to %s\n", channel)
		}))
	}
	subscribe.Spawn("to", to)
	return subscribe
}

func (d *Dispatcher) buildUnsubscribeBranch() *cmdtree.Node {
	unsubscribe := cmdtree.New()
	unsubscribe.SetAction(stableText("unsubscribe_help called.\n"))
	from := cmdtree.New()
	for _, channel := range d.channelOrder {
		channel := channel
		from.Spawn(channel, cmdtree.NewLeaf(func(caller any) string {
			n, ok := caller.(*session.Network)
			if !ok {
				return ""
			}
			d.unsubscribe(n, channel)
			return fmt.Sprintf("unsubscribed from %s\n", channel)
		}))
	}
	unsubscribe.Spawn("from", from)
	return unsubscribe
}

// portsForZabbix renders the Zabbix low-level-discovery JSON document
// listing every serial-reading port in registration order, matching the
// original's `ports_for_zabbix`.
func (d *Dispatcher) portsForZabbix() string {
	var b strings.Builder
	b.WriteString(`{"data":[`)
	for i, name := range d.readPortOrder {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"{#DEWDSP}":"`)
		b.WriteString(name)
		b.WriteString(`"}`)
	}
	b.WriteString(`]}`)
	return b.String()
}

// storedPbs concatenates the raw encoded bytes of every record currently in
// the ring, oldest first; each blob is self-delimiting (the codec's own
// framing), so concatenation alone is a valid multi-record envelope.
func (d *Dispatcher) storedPbs() string {
	var b strings.Builder
	for _, blob := range d.ring.Snapshot() {
		b.Write(blob)
	}
	return b.String()
}

// storedAsciiWaveforms re-decodes every blob in the ring and renders each as
// an ascii_waveforms-format line, oldest first.
func (d *Dispatcher) storedAsciiWaveforms() string {
	var b strings.Builder
	for _, raw := range d.ring.Snapshot() {
		outcome := d.codec.Parse(raw)
		if outcome.Result != wire.Ok {
			continue
		}
		b.Write(outcome.Message.AsciiWaveform())
	}
	return b.String()
}
