package smp

import (
	"sync"
	"time"

	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/crypto"
	"github.com/keepQASSA/system-bt/transport"
)

// state is the LE SMP state (§4.3.1).
type state int

const (
	StateIdle state = iota
	StateWaitAppRsp
	StateSecReqPending
	StatePairReqSent
	StatePairRspPending
	StateWaitConfirm
	StateConfirmSent
	StateRandPending
	StatePublicKeyExch
	StateSecConnPhs1Start
	StateWaitNonce
	StateSecConnPhs2Start
	StateWaitDHKCheck
	StateEncryptionPending
	StateBondPending
	StateRelease
)

// brState is the parallel cross-transport derivation state machine (§4.3.1).
type brState int

const (
	BRStateIdle brState = iota
	BRStateWaitApp
	BRStatePairReqRspPending
	BRStateBondPending
	BRStateRelease
)

// pcbFlags packs the §3 boolean flags.
type pcbFlags struct {
	havePeerPublicKey   bool
	havePeerCommitment  bool
	havePeerDHKeyCheck  bool
	weInitiated         bool
	scModeInUse         bool
	overBR              bool
	deriveLK            bool
}

// pcb is the single per-link Pairing Control Block (§3). The spec mandates
// exactly one at a time per process ("A single global SMP control block is
// acceptable", §5); Engine owns the one instance.
type pcb struct {
	sync.Mutex

	peer  btstack.Address
	state state
	br    brState

	model AssociationModel

	LocalIOCap IOCapability
	PeerIOCap  IOCapability
	LocalAuthReq AuthReq
	PeerAuthReq  AuthReq
	LocalOOB     OOBDataFlag
	PeerOOB      OOBDataFlag

	encKeySize int

	ltk  [16]byte
	csrk [16]byte
	irk  [16]byte
	tk   [16]byte

	localNonce [16]byte
	peerNonce  [16]byte
	localCommitment [16]byte
	peerCommitment  [16]byte
	localDHKeyCheck [16]byte
	peerDHKeyCheck  [16]byte

	localPriv crypto.PrivateKeyP256
	localPub  crypto.PublicKeyP256
	peerPub   crypto.PublicKeyP256
	dhKey     [32]byte
	macKey    [16]byte

	localIKey KeyDistMask // local_i_key
	localRKey KeyDistMask // local_r_key

	passkeyRound int // 0..19
	passkey      uint32

	flags pcbFlags

	delayedAuthTimer transport.TimerHandle
	unackedTx        int

	th transport.Handle
}

// reset zeroizes the pcb completely (§3 "zeroized on completion or
// failure"), grounded on the teacher's PairingSecret wipe-on-unpair
// discipline: every field that could hold key material or session state is
// cleared, not just marked inactive.
func (p *pcb) reset() {
	peer := p.peer
	th := p.th
	*p = pcb{peer: peer, th: th}
}

// delayedAuthDeadline is a helper for tests/logging; not used for control
// flow (the real deadline lives in the transport.Timer callback).
func delayedAuthDeadline(cfg Config) time.Duration {
	return cfg.DelayedAuthTail
}
