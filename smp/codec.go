package smp

import "github.com/keepQASSA/system-bt"

// DecodeError wraps a codec failure; NoReply is set only for the
// truncated-Pairing-Failed special case (§4.1, §9 design note (c)): the
// engine must still treat it as INVALID_PARAMETERS internally but must not
// emit a Pairing-Failed PDU in response, to avoid an infinite failure loop.
type DecodeError struct {
	*btstack.Error
	NoReply bool
}

func malformed(cause error) *DecodeError {
	return &DecodeError{Error: btstack.NewError(btstack.MalformedPdu, cause), NoReply: false}
}

var errBadLength = codecErr("smp: pdu length mismatch for opcode")
var errEmpty = codecErr("smp: empty pdu")

type codecErr string

func (e codecErr) Error() string { return string(e) }

// PDU is a decoded SMP PDU: opcode plus its opcode-determined body, with
// the length check already performed (§4.1).
type PDU struct {
	Opcode Opcode
	Body   []byte
}

// DecodePDU validates buf's length against the opcode's fixed length table
// and returns the split (opcode, body). Any length mismatch yields
// INVALID_PARAMETERS (§4.1 "SMP opcode encoding").
func DecodePDU(buf []byte) (PDU, *DecodeError) {
	if len(buf) < 1 {
		return PDU{}, malformed(errEmpty)
	}
	op := Opcode(buf[0])
	body := buf[1:]

	if op == OpPairingFailed {
		if len(body) < 1 {
			return PDU{}, &DecodeError{Error: btstack.NewError(btstack.MalformedPdu, errBadLength), NoReply: true}
		}
		return PDU{Opcode: op, Body: body[:1]}, nil
	}

	n, known := fixedBodyLen[op]
	if !known {
		return PDU{}, malformed(errBadLength)
	}
	if len(body) != n {
		return PDU{}, malformed(errBadLength)
	}
	return PDU{Opcode: op, Body: body}, nil
}

// EncodePDU prepends the opcode byte to body.
func EncodePDU(op Opcode, body []byte) []byte {
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(op))
	return append(out, body...)
}

// --- Pairing Request / Pairing Response (§4.1, §4.3.2) ---

type PairingReqRsp struct {
	IOCap         IOCapability
	OOB           OOBDataFlag
	AuthReq       AuthReq
	MaxEncKeySize byte
	InitKeyDist   KeyDistMask
	RespKeyDist   KeyDistMask
}

func (p PairingReqRsp) Encode() []byte {
	return []byte{byte(p.IOCap), byte(p.OOB), byte(p.AuthReq), p.MaxEncKeySize, byte(p.InitKeyDist), byte(p.RespKeyDist)}
}

func DecodePairingReqRsp(body []byte) PairingReqRsp {
	return PairingReqRsp{
		IOCap:         IOCapability(body[0]),
		OOB:           OOBDataFlag(body[1]),
		AuthReq:       AuthReq(body[2]),
		MaxEncKeySize: body[3],
		InitKeyDist:   KeyDistMask(body[4]),
		RespKeyDist:   KeyDistMask(body[5]),
	}
}

// --- Pairing Confirm / Pairing Random (§4.1) ---

func Encode16(v [16]byte) []byte { return v[:] }

func Decode16(body []byte) [16]byte {
	var v [16]byte
	copy(v[:], body)
	return v
}

// --- Pairing Failed (§4.1, §4.3.7) ---

func EncodePairingFailed(reason ReasonCode) []byte {
	return EncodePDU(OpPairingFailed, []byte{byte(reason)})
}

func DecodePairingFailed(body []byte) ReasonCode {
	return ReasonCode(body[0])
}

// --- Encryption Information / Master Identification / Identity ---

func DecodeMasterIdentification(body []byte) (ediv uint16, rand [8]byte) {
	ediv = uint16(body[0]) | uint16(body[1])<<8
	copy(rand[:], body[2:10])
	return
}

func EncodeMasterIdentification(ediv uint16, rand [8]byte) []byte {
	out := make([]byte, 0, 10)
	out = append(out, byte(ediv), byte(ediv>>8))
	return append(out, rand[:]...)
}

type IdentityAddressInfo struct {
	AddrType byte
	Addr     btstack.Address
}

func (i IdentityAddressInfo) Encode() []byte {
	return append([]byte{i.AddrType}, i.Addr[:]...)
}

func DecodeIdentityAddressInfo(body []byte) IdentityAddressInfo {
	var a IdentityAddressInfo
	a.AddrType = body[0]
	copy(a.Addr[:], body[1:7])
	return a
}

// --- Security Request (§4.1) ---

func DecodeSecurityRequest(body []byte) AuthReq { return AuthReq(body[0]) }

func EncodeSecurityRequest(a AuthReq) []byte { return EncodePDU(OpSecurityRequest, []byte{byte(a)}) }

// --- Pairing Public Key (§4.1, §4.3.4) ---

type PairingPublicKey struct {
	X, Y [32]byte
}

func (k PairingPublicKey) Encode() []byte {
	out := make([]byte, 0, 64)
	out = append(out, k.X[:]...)
	return append(out, k.Y[:]...)
}

func DecodePairingPublicKey(body []byte) PairingPublicKey {
	var k PairingPublicKey
	copy(k.X[:], body[0:32])
	copy(k.Y[:], body[32:64])
	return k
}

// --- Keypress Notification (§4.1) ---

type KeypressType byte

const (
	KeypressStarted        KeypressType = 0
	KeypressDigitEntered   KeypressType = 1
	KeypressDigitErased    KeypressType = 2
	KeypressCleared        KeypressType = 3
	KeypressCompleted      KeypressType = 4
)

func DecodeKeypress(body []byte) KeypressType { return KeypressType(body[0]) }
func EncodeKeypress(t KeypressType) []byte    { return EncodePDU(OpKeypressNotification, []byte{byte(t)}) }
