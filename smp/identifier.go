// Package smp implements the Security Manager Protocol pairing state
// machine (spec §4.3): association-model selection, legacy and Secure
// Connections pairing, key distribution, and cross-transport key
// derivation. ECC-P-256 and AES-CMAC are consumed via crypto.Provider
// (§6); this package only frames opcodes and drives the state machine.
package smp

// Opcode is the single fixed byte identifying an SMP PDU (§4.1).
type Opcode byte

const (
	OpPairingRequest       Opcode = 0x01
	OpPairingResponse      Opcode = 0x02
	OpPairingConfirm       Opcode = 0x03
	OpPairingRandom        Opcode = 0x04
	OpPairingFailed        Opcode = 0x05
	OpEncryptionInfo       Opcode = 0x06
	OpMasterIdentification Opcode = 0x07
	OpIdentityInfo         Opcode = 0x08
	OpIdentityAddrInfo     Opcode = 0x09
	OpSigningInfo          Opcode = 0x0A
	OpSecurityRequest      Opcode = 0x0B
	OpPairingPublicKey     Opcode = 0x0C
	OpPairingDHKeyCheck    Opcode = 0x0D
	OpKeypressNotification Opcode = 0x0E
	OpPairingLinkKey       Opcode = 0x0F

	opMin = OpPairingRequest
	opMax = OpPairingLinkKey
)

// fixedBodyLen is the opcode-determined body length (excluding the opcode
// byte itself), per §4.1 "Lengths are opcode-determined". PairingFailed is
// intentionally not in this table: its short-body case is handled as a
// special case in DecodePDU (§4.1, §9 design note (c)).
var fixedBodyLen = map[Opcode]int{
	OpPairingRequest:       6,
	OpPairingResponse:      6,
	OpPairingConfirm:       16,
	OpPairingRandom:        16,
	OpEncryptionInfo:       16,
	OpMasterIdentification: 10,
	OpIdentityInfo:         16,
	OpIdentityAddrInfo:     7,
	OpSigningInfo:          16,
	OpSecurityRequest:      1,
	OpPairingPublicKey:     64,
	OpPairingDHKeyCheck:    16,
	OpKeypressNotification: 1,
	OpPairingLinkKey:       16,
}

// IOCapability is the 1-byte IO capability field (§3 PCB entity).
type IOCapability byte

const (
	IODisplayOnly     IOCapability = 0x00
	IODisplayYesNo    IOCapability = 0x01
	IOKeyboardOnly    IOCapability = 0x02
	IONoInputNoOutput IOCapability = 0x03
	IOKeyboardDisplay IOCapability = 0x04
)

// OOBDataFlag is the 1-byte OOB-data-present field.
type OOBDataFlag byte

const (
	OOBNotPresent OOBDataFlag = 0x00
	OOBPresent    OOBDataFlag = 0x01
)

// AuthReq is the bitfield carried in Pairing Request/Response (§4.3.2).
type AuthReq byte

const (
	AuthReqBonding      AuthReq = 0x01
	AuthReqMITM         AuthReq = 0x04
	AuthReqSC           AuthReq = 0x08
	AuthReqKeypress     AuthReq = 0x10
	AuthReqCT2          AuthReq = 0x20
)

// KeyDistMask is the key-distribution bitmask over {ENC, ID, CSRK, LK}
// (§3 PCB entity, §4.3.3).
type KeyDistMask byte

const (
	KeyDistENC  KeyDistMask = 0x01
	KeyDistID   KeyDistMask = 0x02
	KeyDistCSRK KeyDistMask = 0x04
	KeyDistLK   KeyDistMask = 0x08
)

// keyDistOrder is the order key-type bits are walked during distribution
// (§4.3.3: "walks key-type bits in the order {ENC=1, ID=2, CSRK=4, LK=8}").
var keyDistOrder = []KeyDistMask{KeyDistENC, KeyDistID, KeyDistCSRK, KeyDistLK}

// ReasonCode is a §4.3.7 Pairing-Failed reason, range 1..0x0F.
type ReasonCode byte

const (
	ReasonPasskeyEntryFail    ReasonCode = 0x01
	ReasonOOBFail             ReasonCode = 0x02
	ReasonAuthFail            ReasonCode = 0x03
	ReasonConfirmValueErr     ReasonCode = 0x04
	ReasonPairNotSupport      ReasonCode = 0x05
	ReasonEncKeySize          ReasonCode = 0x06
	ReasonInvalidCmd          ReasonCode = 0x07
	ReasonUnknown             ReasonCode = 0x08
	ReasonRepeatedAttempts    ReasonCode = 0x09
	ReasonInvalidParameters   ReasonCode = 0x0A
	ReasonDHKeyCheckFail      ReasonCode = 0x0B
	ReasonNumericComparFail   ReasonCode = 0x0C
	ReasonBREDRPairingInProg  ReasonCode = 0x0D
	ReasonXTransDeriveNotAllow ReasonCode = 0x0E
)

// AssociationModel is the model selected per §4.3.2's IO-cap matrix.
type AssociationModel int

const (
	ModelUnknown AssociationModel = iota
	ModelEncryptionOnly
	ModelPasskey
	ModelOOB
	ModelSCJustWorks
	ModelSCNumericCompare
	ModelSCPasskeyInitDisplays
	ModelSCPasskeyRespDisplays
	ModelSCOOB
)

// IsSC reports whether model is one of the Secure Connections models.
func (m AssociationModel) IsSC() bool {
	return m >= ModelSCJustWorks
}
