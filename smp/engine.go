package smp

import (
	"sync"

	"github.com/op/go-logging"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/crypto"
	"github.com/keepQASSA/system-bt/transport"
)

// SecurityLevel summarizes the bond strength reached at completion, for the
// application to judge whether the link meets its own MITM requirement.
type SecurityLevel int

const (
	SecurityUnauthenticated SecurityLevel = iota
	SecurityAuthenticated
	SecurityAuthenticatedSC
)

// AppCallback is the application-side collaborator the engine blocks on at
// the suspension points named in §5: IO-capability exchange, passkey
// entry/display, numeric-comparison confirmation, OOB data, and the final
// completion notice. Every method runs to completion before the engine
// resumes — the implementation must not call back into Engine from inside
// one of these (§5 "no new event emitted from within a handler").
type AppCallback interface {
	// IOCapRequest asks the application for the local IO capability, OOB
	// flag, AuthReq, max encryption key size, and the two key-distribution
	// masks to advertise (§4.3.2/§4.3.3).
	IOCapRequest(peer btstack.Address) (iocap IOCapability, oob OOBDataFlag, authReq AuthReq, maxEncKeySize byte, initKeyDist, respKeyDist KeyDistMask)
	// PasskeyRequest asks the application for the 6-digit passkey (§4.3.4
	// step 3 Passkey branch). It is called on both sides; the displaying
	// side then also receives PasskeyNotify with the returned value.
	PasskeyRequest(peer btstack.Address) uint32
	// PasskeyNotify tells the application to display a passkey for the
	// user to enter on the peer (display side of the Passkey branch).
	PasskeyNotify(peer btstack.Address, passkey uint32)
	// NumericComparison asks the user to confirm the six-digit comparison
	// value matches what's shown on the peer (§4.3.5 scenario 2).
	NumericComparison(peer btstack.Address, value uint32) bool
	// OOBRequest asks the application for locally-exchanged OOB data, if
	// any, returning ok=false when none is available.
	OOBRequest(peer btstack.Address) (randomizer [16]byte, ok bool)
	// PairingComplete reports the terminal outcome (§4.3.7): success with
	// the reached level, or failure with the reason code that was sent or
	// received.
	PairingComplete(peer btstack.Address, success bool, reason ReasonCode, level SecurityLevel)
	// DerivedLinkKey delivers a BR/EDR link key derived from this LE bond's
	// LTK (§4.3.6 forward direction), once bonding over LE completes with
	// KeyDistLK requested on both sides. The application is the BR/EDR
	// security database's owner; it decides whether to store the key,
	// applying CheckCrossTransportPolicy against whatever it already holds
	// for this peer.
	DerivedLinkKey(peer btstack.Address, linkKey [16]byte)
}

// Engine is the top-level SMP driving API: one Pairing Control Block per
// process (§3, §5), driven by Receive and the timer callbacks it arms
// through transport.Timer. Grounded on EnclaveClient's mutex-guarded,
// re-entrant-safe Step loop (kr/enclave.go), generalized from a single
// request/response RPC into a multi-round protocol state machine.
//
// Every exported method follows the same shape as avdtp.Manager.pump:
// mutate the PCB and compute outbound PDUs while holding the lock, then
// release it before any transport.Write and before the PairingComplete and
// DerivedLinkKey notifications. Timer arm/cancel calls and the other
// AppCallback prompts (IOCapRequest, passkey, numeric comparison, OOB) run
// with the lock held. A mock
// transport delivers writes synchronously, re-entering Receive on the same
// goroutine; holding the lock across a Write would deadlock against that
// re-entrant call (§5 "re-entrancy is avoided by never emitting a new event
// from within a handler without returning to the event loop first").
type Engine struct {
	mu sync.Mutex

	cfg          Config
	provider     crypto.Provider
	tr           transport.Transport
	timer        transport.Timer
	app          AppCallback
	log          *logging.Logger
	localAddress btstack.Address

	p pcb

	delayedAuthHandle transport.TimerHandle
}

// NewEngine validates cfg and constructs an idle Engine bound to tr/timer,
// using localAddr as this device's own public address in every
// address-dependent crypto computation.
func NewEngine(cfg Config, provider crypto.Provider, tr transport.Transport, timer transport.Timer, app AppCallback, log *logging.Logger, localAddr btstack.Address) (*Engine, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:          cfg,
		provider:     provider,
		tr:           tr,
		timer:        timer,
		app:          app,
		log:          log,
		localAddress: localAddr,
	}, nil
}

// Open binds the engine to th for a new pairing attempt with peer,
// resetting any stale PCB state left from a previous attempt with a
// different peer (§3 "one PCB per process; reused across attempts").
func (e *Engine) Open(peer btstack.Address, th transport.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.p.reset()
	e.p.peer = peer
	e.p.th = th
}

// StartPairing sends the initial Pairing Request, applying the
// application's IO-capability answer (§4.3.2 "Pairing initiated" scenario).
func (e *Engine) StartPairing() error {
	e.mu.Lock()
	iocap, oob, authReq, maxKeySize, initKeys, respKeys := e.app.IOCapRequest(e.p.peer)
	e.p.LocalIOCap, e.p.LocalOOB, e.p.LocalAuthReq = iocap, oob, authReq
	e.p.encKeySize = int(maxKeySize)
	e.p.localIKey, e.p.localRKey = initKeys, respKeys
	e.p.flags.weInitiated = true
	e.p.state = StatePairReqSent
	th := e.p.th
	req := PairingReqRsp{IOCap: iocap, OOB: oob, AuthReq: authReq, MaxEncKeySize: maxKeySize, InitKeyDist: initKeys, RespKeyDist: respKeys}
	buf := EncodePDU(OpPairingRequest, req.Encode())
	e.mu.Unlock()

	return e.tr.Write(th, buf)
}

// SendSecurityRequest implements the responder-initiated branch of §4.3.2.
func (e *Engine) SendSecurityRequest(authReq AuthReq) error {
	e.mu.Lock()
	e.p.state = StateSecReqPending
	th := e.p.th
	e.mu.Unlock()
	return e.tr.Write(th, EncodeSecurityRequest(authReq))
}

// Receive is the transport.Events.OnData entry point: decode, dispatch
// through the state machine, and drive every resulting side effect. All PCB
// mutation happens under the lock; every transport Write, and the
// PairingComplete/DerivedLinkKey notifications, happen after it is released.
func (e *Engine) Receive(th transport.Handle, data []byte) {
	e.mu.Lock()

	if th != e.p.th {
		e.mu.Unlock()
		return
	}

	pdu, derr := DecodePDU(data)
	if derr != nil {
		if derr.NoReply {
			peer := e.p.peer
			level := e.finishLocked(false, ReasonInvalidParameters)
			e.mu.Unlock()
			e.log.Warningf("smp: dropping truncated pairing-failed from %s", peer)
			e.app.PairingComplete(peer, false, ReasonInvalidParameters, level)
			return
		}
		peerTh := e.p.th
		peer := e.p.peer
		level := e.finishLocked(false, ReasonInvalidParameters)
		e.mu.Unlock()
		e.tr.Write(peerTh, EncodePairingFailed(ReasonInvalidParameters))
		e.app.PairingComplete(peer, false, ReasonInvalidParameters, level)
		return
	}

	// Pairing Request on the initial state needs the application's answer
	// before beginAssociation can pick a model, so it's handled specially
	// rather than purely inside step() (§5 "suspension point").
	if (e.p.state == StateIdle || e.p.state == StateSecReqPending) && pdu.Opcode == OpPairingRequest {
		iocap, oob, authReq, maxKeySize, initKeys, respKeys := e.app.IOCapRequest(e.p.peer)
		e.p.LocalIOCap, e.p.LocalOOB, e.p.LocalAuthReq = iocap, oob, authReq
		e.p.encKeySize = int(maxKeySize)
		e.p.localIKey, e.p.localRKey = initKeys, respKeys
	}

	out := e.step(pdu.Opcode, pdu.Body)
	e.p.state = out.next

	th2 := e.p.th
	writes := out.send

	if out.done {
		peer := e.p.peer
		level := e.finishLocked(out.reason == 0, out.reason)
		e.mu.Unlock()
		for _, buf := range writes {
			if err := e.tr.Write(th2, buf); err != nil {
				e.log.Warningf("smp: write failed for peer %s: %v", peer, err)
				break
			}
		}
		e.app.PairingComplete(peer, out.reason == 0, out.reason, level)
		return
	}

	var keyWrites [][]byte
	var linkKey [16]byte
	var haveLinkKey bool
	peer := e.p.peer
	if e.p.state == StateBondPending {
		keyWrites, linkKey, haveLinkKey = e.advanceKeyDistributionLocked()
	}
	e.mu.Unlock()

	for _, buf := range writes {
		if err := e.tr.Write(th2, buf); err != nil {
			e.log.Warningf("smp: write failed: %v", err)
			return
		}
	}
	for _, buf := range keyWrites {
		if err := e.tr.Write(th2, buf); err != nil {
			e.log.Warningf("smp: write failed: %v", err)
			return
		}
	}
	if haveLinkKey {
		e.app.DerivedLinkKey(peer, linkKey)
	}
}

// finishLocked implements §4.3.7's bookkeeping half: cancel timers,
// compute the reached security level, and zeroize the PCB. Must be called
// with the lock held; the caller unlocks before notifying the application.
func (e *Engine) finishLocked(success bool, reason ReasonCode) SecurityLevel {
	level := SecurityUnauthenticated
	if success && e.p.flags.scModeInUse {
		level = SecurityAuthenticatedSC
	} else if success && e.p.model != ModelEncryptionOnly && e.p.model != ModelOOB {
		level = SecurityAuthenticated
	}
	if e.delayedAuthHandle != 0 {
		e.timer.Cancel(e.delayedAuthHandle)
		e.delayedAuthHandle = 0
	}
	e.p.reset()
	e.p.state = StateIdle
	return level
}

// advanceKeyDistributionLocked drives §4.3.3's key-distribution walk: build
// every outbound key PDU this side still owes, and once both masks and the
// in-flight counter reach zero, arm the delayed-auth tail timer. Must be
// called with the lock held; the returned buffers are written after
// unlocking.
func (e *Engine) advanceKeyDistributionLocked() (writes [][]byte, linkKey [16]byte, haveLinkKey bool) {
	weAreResponder := !e.p.flags.weInitiated
	for {
		bit, ok := nextKeyToSend(&e.p, weAreResponder)
		if !ok {
			break
		}
		writes = append(writes, e.buildKeyPDUs(bit)...)
		clearSent(&e.p, weAreResponder, bit)
	}

	if !bondingComplete(&e.p) {
		return writes, linkKey, false
	}
	if e.delayedAuthHandle != 0 {
		return writes, linkKey, false // tail already armed by an earlier PDU
	}

	if e.p.flags.deriveLK {
		bothH7 := e.p.LocalAuthReq&h7SupportBit != 0 && e.p.PeerAuthReq&h7SupportBit != 0
		linkKey = DeriveBREDRFromLE(e.provider, e.p.ltk, bothH7)
		haveLinkKey = true
	}

	e.delayedAuthHandle = timerHandleFor(e.p.peer)
	handle := e.delayedAuthHandle
	scheduleTailDelay(e.timer, handle, int(e.cfg.DelayedAuthTail.Milliseconds()), func() {
		e.onDelayedAuthFired(handle)
	})
	return writes, linkKey, haveLinkKey
}

// onDelayedAuthFired is the delayed-auth tail timer's callback (§4.3.3): if
// the PCB is still in BondPending (no late failure raced it), declare
// success.
func (e *Engine) onDelayedAuthFired(handle transport.TimerHandle) {
	e.mu.Lock()
	if e.p.state != StateBondPending || e.delayedAuthHandle != handle {
		e.mu.Unlock()
		return
	}
	peer := e.p.peer
	level := e.finishLocked(true, 0)
	e.mu.Unlock()
	e.app.PairingComplete(peer, true, 0, level)
}

func (e *Engine) buildKeyPDUs(bit KeyDistMask) [][]byte {
	switch bit {
	case KeyDistENC:
		rnd, _ := e.provider.Rand(8)
		var r8 [8]byte
		copy(r8[:], rnd)
		return [][]byte{
			EncodePDU(OpEncryptionInfo, Encode16(e.p.ltk)),
			EncodePDU(OpMasterIdentification, EncodeMasterIdentification(0, r8)),
		}
	case KeyDistID:
		if e.p.irk == ([16]byte{}) {
			if b, err := e.provider.Rand(16); err == nil {
				copy(e.p.irk[:], b)
			}
		}
		info := IdentityAddressInfo{AddrType: 0, Addr: e.localAddress}
		return [][]byte{
			EncodePDU(OpIdentityInfo, Encode16(e.p.irk)),
			EncodePDU(OpIdentityAddrInfo, info.Encode()),
		}
	case KeyDistCSRK:
		if e.p.csrk == ([16]byte{}) {
			if b, err := e.provider.Rand(16); err == nil {
				copy(e.p.csrk[:], b)
			}
		}
		return [][]byte{EncodePDU(OpSigningInfo, Encode16(e.p.csrk))}
	default:
		// KeyDistLK: never carried over SMP itself; derived locally via
		// h6/h7 once both sides' LTKs are known (§4.3.6).
		return nil
	}
}

func timerHandleFor(peer btstack.Address) transport.TimerHandle {
	var h uint32
	for _, b := range peer {
		h = h<<8 | uint32(b)
	}
	return transport.TimerHandle(h)
}

// --- Address/nonce role helpers -------------------------------------------
//
// c1 and f5 mix in the actual initiator/responder's address or nonce
// regardless of which side computes them, so both ends derive identical
// values; f6 instead always orders its own value first (see beginPhase2 in
// statemachine.go).

func (e *Engine) initiatorAddr() [6]byte {
	if e.p.flags.weInitiated {
		return e.localAddress
	}
	return e.p.peer
}

func (e *Engine) responderAddr() [6]byte {
	if e.p.flags.weInitiated {
		return e.p.peer
	}
	return e.localAddress
}

func (e *Engine) initiatorNonce() [16]byte {
	if e.p.flags.weInitiated {
		return e.p.localNonce
	}
	return e.p.peerNonce
}

func (e *Engine) responderNonce() [16]byte {
	if e.p.flags.weInitiated {
		return e.p.peerNonce
	}
	return e.p.localNonce
}

func (e *Engine) initiatorPub() crypto.PublicKeyP256 {
	if e.p.flags.weInitiated {
		return e.p.localPub
	}
	return e.p.peerPub
}

func (e *Engine) responderPub() crypto.PublicKeyP256 {
	if e.p.flags.weInitiated {
		return e.p.peerPub
	}
	return e.p.localPub
}

func (e *Engine) localAddr7() [7]byte {
	var b [7]byte
	copy(b[1:], e.localAddress[:])
	return b
}

func (e *Engine) peerAddr7() [7]byte {
	var b [7]byte
	copy(b[1:], e.p.peer[:])
	return b
}

func (e *Engine) initiatorAddr7() [7]byte {
	if e.p.flags.weInitiated {
		return e.localAddr7()
	}
	return e.peerAddr7()
}

func (e *Engine) responderAddr7() [7]byte {
	if e.p.flags.weInitiated {
		return e.peerAddr7()
	}
	return e.localAddr7()
}

func (e *Engine) generateLocalECDHKey() (crypto.PublicKeyP256, error) {
	priv, pub, err := e.provider.GenerateECDHKeyPair()
	if err != nil {
		return crypto.PublicKeyP256{}, err
	}
	e.p.localPriv = priv
	e.p.localPub = pub
	return pub, nil
}

func toCryptoPub(k PairingPublicKey) crypto.PublicKeyP256 {
	return crypto.PublicKeyP256{X: k.X, Y: k.Y}
}

// genNonce refreshes localNonce from the provider's LE-Rand-backed source,
// used once for legacy/JustWorks/NumericCompare/OOB and once per round for
// the 20-round Passkey exchange (§4.3.4 step 3).
func (e *Engine) genNonce() error {
	b, err := e.provider.Rand(16)
	if err != nil {
		return err
	}
	copy(e.p.localNonce[:], b)
	return nil
}
