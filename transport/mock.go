package transport

import (
	"sync"

	"github.com/keepQASSA/system-bt"
)

// pairBus gives a pair of PairTransports a single FIFO delivery queue shared
// between both directions, so a handler that issues several writes in a row
// (e.g. smp.Engine sending a Pairing Response and its own Pairing Confirm
// from the same inbound event) can't have a later write's cascade outrun an
// earlier one still queued on the same goroutine. Without this, a Write
// that recurses straight into the peer's OnData lets that peer's own
// reaction race ahead of anything the first side still has queued behind
// it — out-of-order delivery purely as an artifact of the test double, not
// the protocol. pump drains breadth-first: every OnData call is made with
// the bus already marked as draining, so a Write from inside it only
// enqueues and returns.
type pairBus struct {
	mu       sync.Mutex
	queue    []delivery
	draining bool
}

type delivery struct {
	events Events
	handle Handle
	data   []byte
}

func (b *pairBus) enqueue(d delivery) {
	b.mu.Lock()
	b.queue = append(b.queue, d)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()
	b.pump()
}

func (b *pairBus) pump() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		d := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()
		d.events.OnData(d.handle, d.data)
	}
}

// PairTransport is an in-memory Transport connecting two engines directly,
// with no mocking framework, the way the teacher's own tests drove
// ImmediatePairTransport/MultiPairTransport. Open on one side is paired with
// Open on the other by a test fixture (see NewPair); writes on one side are
// delivered as OnData callbacks on the other, through the pair's shared bus.
type PairTransport struct {
	mu     sync.Mutex
	peer   *PairTransport
	events Events
	mtu    uint16
	handle Handle
	closed bool
	bus    *pairBus
}

// NewPair builds two connected PairTransports with the given negotiated MTU,
// one bound to each side's Events.
func NewPair(mtu uint16, a, b Events) (*PairTransport, *PairTransport) {
	bus := &pairBus{}
	ta := &PairTransport{events: a, mtu: mtu, handle: 1, bus: bus}
	tb := &PairTransport{events: b, mtu: mtu, handle: 1, bus: bus}
	ta.peer = tb
	tb.peer = ta
	return ta, tb
}

// SetEvents rebinds the Events this side delivers callbacks to. Needed
// when the real Events implementation (e.g. an avdtp.Manager) can only be
// constructed after the transport pair already exists.
func (t *PairTransport) SetEvents(events Events) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = events
}

func (t *PairTransport) Open(peer btstack.Address, psm PSM) (Handle, error) {
	return t.handle, nil
}

func (t *PairTransport) Write(h Handle, data []byte) error {
	t.mu.Lock()
	closed := t.closed
	peer := t.peer
	t.mu.Unlock()
	if closed {
		return btstack.NewError(btstack.TransportLost, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	peer.mu.Lock()
	events := peer.events
	peer.mu.Unlock()
	t.bus.enqueue(delivery{events: events, handle: peer.handle, data: cp})
	return nil
}

func (t *PairTransport) MTU(h Handle) (uint16, error) {
	return t.mtu, nil
}

func (t *PairTransport) Close(h Handle) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.events.OnDisconnect(h)
	return nil
}

// LossyTransport wraps a PairTransport and drops every Nth write (a
// DropEvery of 0 or less drops nothing). No test in this repository uses it.
type LossyTransport struct {
	*PairTransport
	DropEvery int
	count     int
	mu        sync.Mutex
}

func NewLossy(inner *PairTransport, dropEvery int) *LossyTransport {
	return &LossyTransport{PairTransport: inner, DropEvery: dropEvery}
}

func (t *LossyTransport) Write(h Handle, data []byte) error {
	t.mu.Lock()
	t.count++
	drop := t.DropEvery > 0 && t.count%t.DropEvery == 0
	t.mu.Unlock()
	if drop {
		return nil
	}
	return t.PairTransport.Write(h, data)
}
