package avdtp

import (
	"sync"
	"testing"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/transport"
)

// fakeTimer is a manually-driven transport.Timer: SetOneshot just records
// the callback, Fire invokes it. No goroutines, no wall-clock dependency.
type fakeTimer struct {
	mu    sync.Mutex
	cbs   map[transport.TimerHandle]func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{cbs: make(map[transport.TimerHandle]func())}
}

func (f *fakeTimer) SetOneshot(h transport.TimerHandle, ms int, cb func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cbs[h] = cb
}

func (f *fakeTimer) Cancel(h transport.TimerHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cbs, h)
}

func (f *fakeTimer) Fire(h transport.TimerHandle) {
	f.mu.Lock()
	cb, ok := f.cbs[h]
	f.mu.Unlock()
	if ok {
		cb()
	}
}

// recordingSink collects events for assertions instead of driving real
// stream-state logic.
type recordingSink struct {
	mu       sync.Mutex
	ccbEvs   []Event
	scbEvs   []Event
	failures []SignalID
}

func (s *recordingSink) OnCCBEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ccbEvs = append(s.ccbEvs, ev)
}
func (s *recordingSink) OnSCBEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scbEvs = append(s.scbEvs, ev)
}
func (s *recordingSink) OnTransportFailure(ccb Handle, signal SignalID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, signal)
}
func (s *recordingSink) OnConnect(ccb Handle, peer btstack.Address) {}
func (s *recordingSink) OnDisconnect(ccb Handle)                    {}

type managerEvents struct{ m *Manager }

func (e managerEvents) OnConnectCfm(h transport.Handle, ok bool)              {}
func (e managerEvents) OnConnectInd(h transport.Handle, peer btstack.Address) {}
func (e managerEvents) OnData(h transport.Handle, data []byte)               { e.m.OnData(h, data) }
func (e managerEvents) OnCongested(h transport.Handle, congested bool)       { e.m.OnCongested(h, congested) }
func (e managerEvents) OnDisconnect(h transport.Handle)                      { e.m.OnDisconnect(h) }

func newTestPair(t *testing.T) (*Manager, *recordingSink, *Manager, *recordingSink) {
	t.Helper()
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}

	var mgrA, mgrB *Manager
	ta, tb := transport.NewPair(100, nil, nil)

	var err error
	mgrA, err = NewManager(DefaultConfig(), ta, newFakeTimer(), sinkA, testLog())
	if err != nil {
		t.Fatalf("NewManager A: %v", err)
	}
	mgrB, err = NewManager(DefaultConfig(), tb, newFakeTimer(), sinkB, testLog())
	if err != nil {
		t.Fatalf("NewManager B: %v", err)
	}

	// Wire events after construction since Manager needs to exist first.
	ta.SetEvents(managerEvents{m: mgrA})
	tb.SetEvents(managerEvents{m: mgrB})

	if _, err := mgrA.Open(testAddr(), 1); err != nil {
		t.Fatalf("open A: %v", err)
	}
	if _, err := mgrB.Open(testAddr(), 1); err != nil {
		t.Fatalf("open B: %v", err)
	}
	return mgrA, sinkA, mgrB, sinkB
}

func TestConcurrentCommandsOnOneCCB(t *testing.T) {
	mgrA, _, mgrB, sinkB := newTestPair(t)

	ccbA := Handle(1)
	if err := mgrA.SendCommand(ccbA, SigDiscover, nil); err != nil {
		t.Fatalf("send A: %v", err)
	}
	if err := mgrA.SendCommand(ccbA, SigGetCapabilities, []byte{0}); err != nil {
		t.Fatalf("send B: %v", err)
	}

	mgrA.Lock()
	c := mgrA.ccbs[ccbA]
	mgrA.Unlock()
	c.Lock()
	if c.outstanding == nil || c.outstanding.signal != SigDiscover {
		t.Fatalf("expected discover to be outstanding, got %+v", c.outstanding)
	}
	if len(c.cmdQueue) != 1 {
		t.Fatalf("expected second command queued, got %d queued", len(c.cmdQueue))
	}
	label := c.outstanding.label
	c.Unlock()

	if len(sinkB.ccbEvs) != 1 || sinkB.ccbEvs[0].Signal != SigDiscover {
		t.Fatalf("expected B to see one discover event, got %+v", sinkB.ccbEvs)
	}

	respLabel := sinkB.ccbEvs[0].Label
	if respLabel != label {
		t.Fatalf("label mismatch: cmd stamped %d, B observed %d", label, respLabel)
	}
	if err := mgrB.SendResponse(Handle(1), respLabel, SigDiscover, nil); err != nil {
		t.Fatalf("send response: %v", err)
	}

	// By the time SendResponse returns, A has synchronously processed the
	// matching response (clearing the discover slot) and started sending
	// the queued get-capabilities command (§4.2 scenario 6).
	mgrA.Lock()
	c2 := mgrA.ccbs[ccbA]
	mgrA.Unlock()
	c2.Lock()
	nowOutstanding := c2.outstanding
	c2.Unlock()
	if nowOutstanding == nil || nowOutstanding.signal != SigGetCapabilities {
		t.Fatalf("expected get-capabilities to begin sending next, got %+v", nowOutstanding)
	}
}

func TestStartCommandFansOutToEveryBoundSCB(t *testing.T) {
	mgrA, _, mgrB, sinkB := newTestPair(t)

	seid1, err := mgrB.AllocateSEP(1)
	if err != nil {
		t.Fatalf("allocate seid 1: %v", err)
	}
	seid2, err := mgrB.AllocateSEP(2)
	if err != nil {
		t.Fatalf("allocate seid 2: %v", err)
	}

	// A Start command body is a sequence of ACP_SEID octets, one per stream.
	body := []byte{1 << 2, 2 << 2}
	if err := mgrA.SendCommand(Handle(1), SigStart, body); err != nil {
		t.Fatalf("send start: %v", err)
	}

	if len(sinkB.ccbEvs) != 1 || sinkB.ccbEvs[0].Signal != SigStart {
		t.Fatalf("expected one CCB-level start event, got %+v", sinkB.ccbEvs)
	}
	if len(sinkB.scbEvs) != 2 {
		t.Fatalf("expected a fanned-out SCB event per bound stream, got %d: %+v", len(sinkB.scbEvs), sinkB.scbEvs)
	}
	seen := map[Handle]bool{}
	for _, ev := range sinkB.scbEvs {
		if ev.Signal != SigStart {
			t.Fatalf("expected fanned-out events to carry SigStart, got %v", ev.Signal)
		}
		seen[ev.SCB] = true
	}
	if !seen[seid1] || !seen[seid2] {
		t.Fatalf("expected both bound SCBs notified, got %+v", seen)
	}
}

func TestSuspendCommandFansOutToEveryBoundSCB(t *testing.T) {
	mgrA, _, mgrB, sinkB := newTestPair(t)

	seid1, err := mgrB.AllocateSEP(5)
	if err != nil {
		t.Fatalf("allocate seid 5: %v", err)
	}

	body := []byte{5 << 2}
	if err := mgrA.SendCommand(Handle(1), SigSuspend, body); err != nil {
		t.Fatalf("send suspend: %v", err)
	}

	if len(sinkB.ccbEvs) != 1 || sinkB.ccbEvs[0].Signal != SigSuspend {
		t.Fatalf("expected one CCB-level suspend event, got %+v", sinkB.ccbEvs)
	}
	if len(sinkB.scbEvs) != 1 || sinkB.scbEvs[0].SCB != seid1 {
		t.Fatalf("expected the bound SCB notified, got %+v", sinkB.scbEvs)
	}
}

func TestMismatchedLabelResponseDropped(t *testing.T) {
	mgrA, _, mgrB, sinkB := newTestPair(t)
	if err := mgrA.SendCommand(Handle(1), SigDiscover, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sinkB.ccbEvs) != 1 {
		t.Fatalf("expected B to observe the command")
	}
	wrongLabel := (sinkB.ccbEvs[0].Label + 1) & 0x0F
	if err := mgrB.SendResponse(Handle(1), wrongLabel, SigDiscover, nil); err != nil {
		t.Fatalf("send response: %v", err)
	}

	mgrA.Lock()
	c := mgrA.ccbs[Handle(1)]
	mgrA.Unlock()
	c.Lock()
	defer c.Unlock()
	if c.outstanding == nil {
		t.Fatal("mismatched-label response must not clear outstanding")
	}
}
