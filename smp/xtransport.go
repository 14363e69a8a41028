package smp

import (
	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/crypto"
)

// h7SupportBit marks the auth-req bit both sides must advertise to use h7
// instead of h6 for cross-transport derivation (§4.3.6). AuthReqCT2 is
// that bit (Bluetooth Core Spec Vol 3 Part H §3.6.1: CT2 flag).
const h7SupportBit = AuthReqCT2

// keyIDBREDRFromLE / keyIDLEFromBREDR are the 4-byte "key ID" h6 mixes in
// for each derivation direction (Core Spec Vol 3 Part H §2.4.2.4/2.4.2.5).
var (
	keyIDBREDRFromLE = [4]byte{'b', 'l', 'e', 'b'}
	keyIDLEFromBREDR = [4]byte{'l', 'e', 'b', 'r'}
)

// h7Salt is the fixed salt h7 uses in place of h6's "tmp1" constant
// derivation (Core Spec Vol 3 Part H §2.4.2.6/2.4.2.7).
var h7Salt = [16]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x31, 0x70, 0x6D, 0x74, 0x00, 0x00, 0x00, 0x00}

// DeriveBREDRFromLE implements §4.3.6's forward direction: derive a BR/EDR
// link key from LTK using h6, or h7 if both sides advertised
// H7_SUPPORT_BIT. Exported alongside DeriveLEFromBREDR so the host can run
// either direction without going through an Engine.
func DeriveBREDRFromLE(provider crypto.Provider, ltk [16]byte, bothSupportH7 bool) [16]byte {
	if bothSupportH7 {
		return provider.H7(h7Salt, ltk)
	}
	return provider.H6(ltk, keyIDBREDRFromLE)
}

// DeriveLEFromBREDR implements §4.3.6's reverse direction: "If both sides
// negotiate SMP over BR/EDR, the reverse direction derives an LTK from the
// BR/EDR link key via the same function pair." Unlike the forward
// direction, this has no PCB to hang off — classic BR/EDR pairing completes
// on its own timeline, driven by the HCI layer (§1's external collaborator
// boundary), so this is exported as a standalone pure function the host
// calls directly once it has a BR/EDR link key and both sides' CT2 bits.
func DeriveLEFromBREDR(provider crypto.Provider, linkKey [16]byte, bothSupportH7 bool) [16]byte {
	if bothSupportH7 {
		return provider.H7(h7Salt, linkKey)
	}
	return provider.H6(linkKey, keyIDLEFromBREDR)
}

// KeyAuthLevel orders BR/LE link authentication strength for the §4.3.6
// policy guard.
type KeyAuthLevel int

const (
	AuthUnauthenticated KeyAuthLevel = iota
	AuthAuthenticated
	AuthAuthenticatedSC
)

// CheckCrossTransportPolicy implements the §4.3.6 policy guard: "a BR key
// already more-authenticated than the LE link blocks derivation-overwrite
// in that direction." The host's security database calls this before
// accepting either direction's derived key as a replacement for one it
// already holds.
func CheckCrossTransportPolicy(existingBRAuth, newLEAuth KeyAuthLevel) *btstack.Error {
	if existingBRAuth > newLEAuth {
		return btstack.NewError(btstack.PolicyRefused, nil)
	}
	return nil
}
