package smp

import (
	"sync"
	"testing"

	"github.com/op/go-logging"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/smp/smptest"
	"github.com/keepQASSA/system-bt/transport"
)

func testLog() *logging.Logger { return logging.MustGetLogger("smp-test") }

func addrA() btstack.Address { return btstack.Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06} }
func addrB() btstack.Address { return btstack.Address{0x11, 0x12, 0x13, 0x14, 0x15, 0x16} }

// fakeTimer is a manually-driven transport.Timer, mirroring avdtp's test
// double: SetOneshot records the callback, Fire invokes it synchronously.
type fakeTimer struct {
	mu  sync.Mutex
	cbs map[transport.TimerHandle]func()
}

func newFakeTimer() *fakeTimer { return &fakeTimer{cbs: make(map[transport.TimerHandle]func())} }

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

// fakeApp is a scripted AppCallback: fixed IO capability answers, a fixed
// passkey, a fixed numeric-comparison verdict, and a recording of every
// PairingComplete call.
type fakeApp struct {
	mu sync.Mutex

	ioCap       IOCapability
	oob         OOBDataFlag
	authReq     AuthReq
	maxKeySize  byte
	initKeyDist KeyDistMask
	respKeyDist KeyDistMask

	passkey     uint32
	numericOK   bool
	completions []completion

	oobData [16]byte
	haveOOB bool

	derivedLinkKeys []derivedLinkKey
}

type completion struct {
	peer    btstack.Address
	success bool
	reason  ReasonCode
	level   SecurityLevel
}

type derivedLinkKey struct {
	peer btstack.Address
	key  [16]byte
}

func (a *fakeApp) IOCapRequest(peer btstack.Address) (IOCapability, OOBDataFlag, AuthReq, byte, KeyDistMask, KeyDistMask) {
	return a.ioCap, a.oob, a.authReq, a.maxKeySize, a.initKeyDist, a.respKeyDist
}
func (a *fakeApp) PasskeyRequest(peer btstack.Address) uint32 { return a.passkey }
func (a *fakeApp) PasskeyNotify(peer btstack.Address, passkey uint32) {}
func (a *fakeApp) NumericComparison(peer btstack.Address, value uint32) bool { return a.numericOK }
func (a *fakeApp) OOBRequest(peer btstack.Address) ([16]byte, bool)         { return a.oobData, a.haveOOB }
func (a *fakeApp) PairingComplete(peer btstack.Address, success bool, reason ReasonCode, level SecurityLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completions = append(a.completions, completion{peer, success, reason, level})
}

func (a *fakeApp) DerivedLinkKey(peer btstack.Address, linkKey [16]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.derivedLinkKeys = append(a.derivedLinkKeys, derivedLinkKey{peer, linkKey})
}

func (a *fakeApp) lastCompletion() (completion, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.completions) == 0 {
		return completion{}, false
	}
	return a.completions[len(a.completions)-1], true
}

type engineEvents struct{ e *Engine }

func (v engineEvents) OnConnectCfm(h transport.Handle, ok bool)              {}
func (v engineEvents) OnConnectInd(h transport.Handle, peer btstack.Address) {}
func (v engineEvents) OnData(h transport.Handle, data []byte)               { v.e.Receive(h, data) }
func (v engineEvents) OnCongested(h transport.Handle, congested bool)       {}
func (v engineEvents) OnDisconnect(h transport.Handle)                      {}

// pairedEngines wires two Engines over an in-memory transport pair, each
// with its own fakeApp and fakeTimer, both bound to the same Provider.
type pairedEngines struct {
	a, b       *Engine
	appA, appB *fakeApp
	timerA, timerB *fakeTimer
}

func newPairedEngines(t *testing.T, ioCapA, ioCapB IOCapability, authReqA, authReqB AuthReq) *pairedEngines {
	t.Helper()
	provider := smptest.Provider{}
	appA := &fakeApp{ioCap: ioCapA, authReq: authReqA, maxKeySize: 16, initKeyDist: KeyDistENC | KeyDistID, respKeyDist: KeyDistENC | KeyDistID}
	appB := &fakeApp{ioCap: ioCapB, authReq: authReqB, maxKeySize: 16, initKeyDist: KeyDistENC | KeyDistID, respKeyDist: KeyDistENC | KeyDistID}
	timerA := newFakeTimer()
	timerB := newFakeTimer()

	ta, tb := transport.NewPair(200, nil, nil)

	engA, err := NewEngine(DefaultConfig(), provider, ta, timerA, appA, testLog(), addrA())
	if err != nil {
		t.Fatalf("new engine A: %v", err)
	}
	engB, err := NewEngine(DefaultConfig(), provider, tb, timerB, appB, testLog(), addrB())
	if err != nil {
		t.Fatalf("new engine B: %v", err)
	}

	ta.SetEvents(engineEvents{e: engA})
	tb.SetEvents(engineEvents{e: engB})

	engA.Open(addrB(), 1)
	engB.Open(addrA(), 1)

	return &pairedEngines{a: engA, b: engB, appA: appA, appB: appB, timerA: timerA, timerB: timerB}
}
