// Package transport defines the external channel collaborator (§6): a
// reliable, in-order, packetized connection abstraction with a per-channel
// MTU, plus the one-shot timer source both engines park on. Neither avdtp
// nor smp implements these — callers supply a concrete L2CAP-like driver
// and a timer source; this package carries the interfaces, a pair of
// in-memory test doubles, a no-op StubDriver and a wall-clock SystemTimer,
// grounded on kr.Transport / krd.BluetoothDriverI.
package transport

import "github.com/keepQASSA/system-bt"

// PSM is a Protocol/Service Multiplexer value selecting which fixed or
// dynamic L2CAP-like channel a connection uses.
type PSM uint16

const (
	PSMAVDTPSignaling PSM = 0x0019
	PSMAVDTPBrowsing  PSM = 0x001B
	PSMSMP            PSM = 0x0006 // fixed LE signaling channel
	PSMSMPOverBR      PSM = 0x003F
)

// Handle identifies one open channel to the transport's owner. It carries
// no meaning outside the Transport implementation that issued it.
type Handle uint32

// Events is the upward-facing half of Transport (§6): callbacks the
// transport driver invokes on the owning engine. A concrete driver is
// expected to hold one Events and call back into it from whatever OS-level
// polling loop it runs, never concurrently with itself.
type Events interface {
	OnConnectCfm(h Handle, ok bool)
	OnConnectInd(h Handle, peer btstack.Address)
	OnData(h Handle, data []byte)
	OnCongested(h Handle, congested bool)
	OnDisconnect(h Handle)
}

// Transport is the downward-facing half (§6): what an engine calls to open,
// write to, and close a channel, and to learn its negotiated MTU.
type Transport interface {
	Open(peer btstack.Address, psm PSM) (Handle, error)
	Write(h Handle, data []byte) error
	MTU(h Handle) (uint16, error)
	Close(h Handle) error
}

// Timer is the one-shot timer source (§6). At most one firing is pending
// per handle; scheduling again before it fires replaces the pending one.
type Timer interface {
	SetOneshot(h TimerHandle, ms int, cb func())
	Cancel(h TimerHandle)
}

// TimerHandle names one logical timer slot (e.g. a CCB's retransmit timer).
// Callers mint their own small integer space; Timer implementations treat
// it as an opaque key.
type TimerHandle uint32
