package avdtp

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/op/go-logging"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/transport"
)

// EventSink is the upward-facing callback surface a Manager drives once a
// dispatched Event is ready (§4.2 msg_ind: "Events are either CCB events
// ... or SCB events"). Implementations run to completion and must not
// re-enter the Manager from within a callback (§5 "re-entrancy is avoided
// by never emitting a new event from within a handler without returning to
// the event loop first").
type EventSink interface {
	OnCCBEvent(ev Event)
	OnSCBEvent(ev Event)
	// OnTransportFailure reports a retransmit-count-exceeded or
	// response-timer-fired terminal failure (§4.2).
	OnTransportFailure(ccb Handle, signal SignalID)
	// OnConnect/OnDisconnect mirror the transport's channel lifecycle so
	// the sink can create/release SCB bindings.
	OnConnect(ccb Handle, peer btstack.Address)
	OnDisconnect(ccb Handle)
}

// Manager is the process-wide AVDTP subsystem (§9 design note): one owner
// of the CCB/SCB pools, addressed by callers through Handle values rather
// than pointers. Grounded on EnclaveClient's Start/Stop lifecycle and
// mutex-guarded single control block, generalized to a pool of control
// blocks.
type Manager struct {
	sync.Mutex

	cfg   Config
	tr    transport.Transport
	timer transport.Timer
	sink  EventSink
	log   *logging.Logger

	ccbs      map[Handle]*ccb
	byTransport map[transport.Handle]Handle
	nextCCB   Handle

	scbs [seidPoolSize + 1]*scb // index 0 unused, 1..62 live

	// dedup suppresses reprocessing a retransmitted command the peer
	// re-sent before seeing our response, keyed by (peer, label, signal).
	// Grounded verbatim on EnclaveClient's ackedRequestIDs/
	// requestCallbacksByRequestID groupcache/lru.Cache use: a bounded,
	// evicting cache keyed by a short-lived request id.
	dedup *lru.Cache
}

// NewManager validates cfg and constructs a Manager bound to tr/timer,
// delivering classified events to sink.
func NewManager(cfg Config, tr transport.Transport, timer transport.Timer, sink EventSink, log *logging.Logger) (*Manager, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:         cfg,
		tr:          tr,
		timer:       timer,
		sink:        sink,
		log:         log,
		ccbs:        make(map[Handle]*ccb),
		byTransport: make(map[transport.Handle]Handle),
		dedup:       lru.New(256),
	}, nil
}

// Open establishes (or returns the existing) CCB for peer over th, the
// transport channel already opened to it (§3 "created on first signaling
// channel open to a peer").
func (m *Manager) Open(peer btstack.Address, th transport.Handle) (Handle, error) {
	m.Lock()
	defer m.Unlock()

	if h, ok := m.byTransport[th]; ok {
		return h, nil
	}
	mtu, err := m.tr.MTU(th)
	if err != nil {
		return InvalidHandle, err
	}
	m.nextCCB++
	h := m.nextCCB
	c := newCCB(h, peer, th, mtu, m.log)
	m.ccbs[h] = c
	m.byTransport[th] = h
	m.armIdle(c)
	return h, nil
}

// Close tears a CCB down: cancels its timers, releases any SCBs bound to
// it, and closes the underlying transport channel (§3 lifecycle).
func (m *Manager) Close(h Handle) error {
	m.Lock()
	c, ok := m.ccbs[h]
	if !ok {
		m.Unlock()
		return nil
	}
	delete(m.ccbs, h)
	delete(m.byTransport, c.th)
	for _, sh := range c.scbs {
		if s := m.scbs[sh]; s != nil {
			s.Lock()
			s.bound = false
			s.ccb = InvalidHandle
			s.Unlock()
		}
	}
	m.Unlock()

	m.cancelAllTimers(c)
	return m.tr.Close(c.th)
}

// AllocateSEP reserves one SCB from the fixed pool (§3 "allocated at
// startup from a fixed pool"). seid must be in 1..62 and not already in use.
func (m *Manager) AllocateSEP(seid byte) (Handle, error) {
	if seid < 1 || int(seid) > seidPoolSize {
		return InvalidHandle, btstack.NewError(btstack.MalformedPdu, nil)
	}
	m.Lock()
	defer m.Unlock()
	if m.scbs[seid] != nil && m.scbs[seid].inUse {
		return InvalidHandle, btstack.NewError(btstack.StateViolation, nil)
	}
	s := &scb{handle: Handle(seid), seid: seid, inUse: true}
	m.scbs[seid] = s
	return s.handle, nil
}

// ReleaseSEP returns seid to the pool (§3 "released on abort/close/tear-down").
func (m *Manager) ReleaseSEP(seid byte) {
	m.Lock()
	defer m.Unlock()
	if int(seid) <= seidPoolSize {
		m.scbs[seid] = nil
	}
}

// OnData is the transport.Events entry point for inbound signaling data.
// It reassembles, dispatches, and drives the send loop, implementing the
// full §4.2 receive path.
func (m *Manager) OnData(th transport.Handle, data []byte) {
	m.Lock()
	h, ok := m.byTransport[th]
	if !ok {
		m.Unlock()
		return
	}
	c := m.ccbs[h]
	m.Unlock()

	c.Lock()
	complete := c.asmbl(data, m.cfg.ReassemblyBufferSize)
	c.Unlock()
	if complete == nil {
		return
	}

	c.Lock()
	ev, rejectSignal, ok := c.msgInd(complete)
	if !ok && rejectSignal != 0 {
		label := complete[0] >> 4 & 0x0F
		reject := generalReject(label, rejectSignal)
		c.rspQueue = append(c.rspQueue, reject)
		c.Unlock()
		m.pump(c)
		return
	}
	if !ok {
		c.Unlock()
		return
	}

	if ev.Msg == MsgCommand {
		dedupKey := [3]interface{}{c.peer, ev.Label, ev.Signal}
		if _, seen := m.dedup.Get(dedupKey); seen {
			c.Unlock()
			return
		}
		m.dedup.Add(dedupKey, struct{}{})
	} else {
		// Matching response/reject: stop this CCB's timers and clear the
		// outstanding slot (§4.2 "Receipt of the matching response stops
		// all three timers and clears the retransmission counter").
		m.cancelAllTimers(c)
		c.outstanding = nil
	}
	c.Unlock()

	m.armIdle(c)

	if ev.id.isSCBEvent() {
		ev.SCB = m.scbHandleForSEID(ev.SEID)
		m.sink.OnSCBEvent(ev)
	} else {
		m.sink.OnCCBEvent(ev)
		// Start/Suspend fan out to every SCB named in the command's SEID
		// list (§4.2), in addition to the single CCB-level event above.
		for _, seid := range ev.SEIDs {
			scbEv := ev
			scbEv.SEID = seid
			scbEv.SCB = m.scbHandleForSEID(seid)
			if scbEv.SCB == InvalidHandle {
				continue
			}
			m.sink.OnSCBEvent(scbEv)
		}
	}

	if ev.Msg != MsgCommand {
		m.pump(c)
	}
}

func (m *Manager) scbHandleForSEID(seid byte) Handle {
	if int(seid) > seidPoolSize || seid == 0 {
		return InvalidHandle
	}
	m.Lock()
	defer m.Unlock()
	if s := m.scbs[seid]; s != nil {
		return s.handle
	}
	return InvalidHandle
}

// SendCommand builds and queues an outbound command (§4.2 send_cmd). signal
// is the AVDTP signal id; body is the already-codec-encoded payload
// (everything after the header+signal-id bytes, e.g. the ACP SEID byte
// followed by a configuration element sequence).
func (m *Manager) SendCommand(h Handle, signal SignalID, body []byte) error {
	m.Lock()
	c, ok := m.ccbs[h]
	m.Unlock()
	if !ok {
		return btstack.NewError(btstack.StateViolation, nil)
	}

	c.Lock()
	label := c.nextLabel()
	buf := buildSingle(label, PacketSingle, MsgCommand, signal, body)
	c.cmdQueue = append(c.cmdQueue, buf)
	c.Unlock()

	m.pump(c)
	return nil
}

// SendResponse queues an accept response to the given label (§4.2 send_rsp).
func (m *Manager) SendResponse(h Handle, label byte, signal SignalID, body []byte) error {
	return m.sendRspOrRej(h, label, signal, MsgResponseAccept, body)
}

// SendReject queues a reject response (§4.2 send_rej). Abort never uses
// this path (§4.2 "Abort is special: never reply with a reject").
func (m *Manager) SendReject(h Handle, label byte, signal SignalID, body []byte) error {
	if signal == SigAbort {
		return btstack.NewError(btstack.StateViolation, nil)
	}
	return m.sendRspOrRej(h, label, signal, MsgResponseReject, body)
}

func (m *Manager) sendRspOrRej(h Handle, label byte, signal SignalID, msg MessageType, body []byte) error {
	m.Lock()
	c, ok := m.ccbs[h]
	m.Unlock()
	if !ok {
		return btstack.NewError(btstack.StateViolation, nil)
	}
	c.Lock()
	buf := buildSingle(label, PacketSingle, msg, signal, body)
	c.rspQueue = append(c.rspQueue, buf)
	c.Unlock()
	m.pump(c)
	return nil
}

func buildSingle(label byte, p PacketType, msg MessageType, signal SignalID, body []byte) []byte {
	h := EncodeHeader(Header{Label: label, Packet: p, Msg: msg, Signal: signal})
	out := make([]byte, 0, len(h)+len(body))
	out = append(out, h...)
	out = append(out, body...)
	return out
}

// pump drains queued messages through the fragmenter until the channel is
// congested or nothing remains (§4.2 "send" loop). Responses/rejects are
// serviced before commands so a peer's request is never starved by our own
// outstanding command.
func (m *Manager) pump(c *ccb) {
	for {
		c.Lock()
		if !c.out.active {
			switch {
			case len(c.rspQueue) > 0:
				c.startMessage(c.rspQueue[0], false)
				c.rspQueue = c.rspQueue[1:]
			case c.outstanding == nil && len(c.cmdQueue) > 0:
				buf := c.cmdQueue[0]
				c.cmdQueue = c.cmdQueue[1:]
				label := buf[0] >> 4 & 0x0F
				signal := SignalID(buf[1] & 0x3F)
				c.outstanding = &outstandingCmd{label: label, signal: signal, seid: peekSEID(signal, buf[2:]), usesRetrans: retransmitSignals[signal], buf: buf}
				c.startMessage(buf, true)
			default:
				c.Unlock()
				return
			}
		}
		frag := c.nextFragment()
		justCompletedCmd := c.outstanding != nil && !c.out.active
		c.Unlock()

		if frag == nil {
			return
		}
		if err := m.tr.Write(c.th, frag); err != nil {
			m.log.Warningf("avdtp: write failed on ccb %d: %v", c.handle, err)
			return
		}
		if justCompletedCmd {
			m.armCompletionTimer(c)
		}
	}
}

// OnCongested implements transport.Events: resumes the send loop once
// congestion clears.
func (m *Manager) OnCongested(th transport.Handle, congested bool) {
	m.Lock()
	h, ok := m.byTransport[th]
	m.Unlock()
	if !ok {
		return
	}
	c := m.ccbs[h]
	c.Lock()
	c.congested = congested
	c.Unlock()
	if !congested {
		m.pump(c)
	}
}

// OnDisconnect implements transport.Events (§5 "A transport-disconnect
// event behaves as cancellation with reason CONN_TOUT").
func (m *Manager) OnDisconnect(th transport.Handle) {
	m.Lock()
	h, ok := m.byTransport[th]
	m.Unlock()
	if !ok {
		return
	}
	m.Close(h)
	m.sink.OnDisconnect(h)
}

func (m *Manager) onIdleTimeout(h Handle) {
	m.Close(h)
}

func (m *Manager) onRetransmitTimeout(h Handle) {
	m.Lock()
	c, ok := m.ccbs[h]
	m.Unlock()
	if !ok || c.outstanding == nil {
		return
	}
	c.Lock()
	out := c.outstanding
	out.retries++
	exceeded := out.retries > m.cfg.RetransmitCount
	resend := out.buf
	c.Unlock()

	if exceeded {
		c.outstanding = nil
		m.sink.OnTransportFailure(h, out.signal)
		return
	}
	c.Lock()
	c.cmdQueue = append([][]byte{resend}, c.cmdQueue...)
	c.outstanding = nil
	c.Unlock()
	m.pump(c)
}

func (m *Manager) onResponseTimeout(h Handle) {
	m.Lock()
	c, ok := m.ccbs[h]
	m.Unlock()
	if !ok || c.outstanding == nil {
		return
	}
	signal := c.outstanding.signal
	c.outstanding = nil
	m.sink.OnTransportFailure(h, signal)
}

// Shutdown closes every open CCB. Intended for process teardown.
func (m *Manager) Shutdown() {
	m.Lock()
	handles := make([]Handle, 0, len(m.ccbs))
	for h := range m.ccbs {
		handles = append(handles, h)
	}
	m.Unlock()
	for _, h := range handles {
		m.Close(h)
	}
}
