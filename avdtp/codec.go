package avdtp

import "github.com/keepQASSA/system-bt"

// Header is the decoded form of an AVDTP signaling packet's first bytes
// (§4.1). Nosp is only meaningful for PacketStart.
type Header struct {
	Label   byte
	Packet  PacketType
	Msg     MessageType
	Nosp    byte
	Signal  SignalID
}

// minPacketLength is the smallest total-length a fragment of each packet
// type can be before the reassembler drops it outright (§4.2 "Any fragment
// whose total length is less than the per-packet-type minimum is dropped").
var minPacketLength = map[PacketType]int{
	PacketSingle: 2, // header byte + signal-id byte
	PacketStart:  3, // header byte + nosp byte + signal-id byte
	PacketCont:   1, // header byte only
	PacketEnd:    1,
}

// EncodeHeader writes the first 1 or 2 bytes of a SINGLE/START packet
// (label, packet type, message type, and for START the nosp byte) followed
// by the signal-id byte. CONT/END packets carry only the first byte and no
// signal-id, so for those it returns that single byte.
func EncodeHeader(h Header) []byte {
	first := byte(h.Label&0x0F)<<4 | byte(h.Packet&0x03)<<2 | byte(h.Msg&0x03)
	switch h.Packet {
	case PacketStart:
		return []byte{first, h.Nosp, byte(h.Signal) & 0x3F}
	case PacketCont, PacketEnd:
		return []byte{first}
	default: // PacketSingle
		return []byte{first, byte(h.Signal) & 0x3F}
	}
}

// DecodeHeader parses the fixed header fields out of buf. It returns a
// MalformedPdu error when buf is shorter than the header of its packet type
// (1 byte for CONT/END, 2 for SINGLE, 3 for START).
func DecodeHeader(buf []byte) (Header, *btstack.Error) {
	if len(buf) < 1 {
		return Header{}, btstack.NewError(btstack.MalformedPdu, errShortHeader)
	}
	h := Header{
		Label: buf[0] >> 4 & 0x0F,
		Packet: PacketType(buf[0] >> 2 & 0x03),
		Msg:   MessageType(buf[0] & 0x03),
	}
	switch h.Packet {
	case PacketStart:
		if len(buf) < 3 {
			return Header{}, btstack.NewError(btstack.MalformedPdu, errShortHeader)
		}
		h.Nosp = buf[1]
		h.Signal = SignalID(buf[2] & 0x3F)
	case PacketSingle:
		if len(buf) < 2 {
			return Header{}, btstack.NewError(btstack.MalformedPdu, errShortHeader)
		}
		h.Signal = SignalID(buf[1] & 0x3F)
	}
	return h, nil
}

// headerLen reports how many leading bytes DecodeHeader consumes for a
// packet of the given type, for callers that need to slice past it.
func headerLen(p PacketType) int {
	switch p {
	case PacketStart:
		return 3
	case PacketSingle:
		return 2
	default:
		return 1
	}
}

type codecErr string

func (e codecErr) Error() string { return string(e) }

const (
	errShortHeader   = codecErr("avdtp: packet shorter than its header")
	errShortCatElem  = codecErr("avdtp: configuration element truncated")
	errCatTooLong    = codecErr("avdtp: configuration element exceeds declared length")
)

// ConfigElement is one (category, payload) pair from a capabilities or
// configuration element sequence (§4.1).
type ConfigElement struct {
	Category CategoryID
	Payload  []byte
}

// EncodeConfig serializes a sequence of configuration elements as
// (category_id, length, payload) triples.
func EncodeConfig(elems []ConfigElement) []byte {
	out := make([]byte, 0, len(elems)*4)
	for _, e := range elems {
		out = append(out, byte(e.Category), byte(len(e.Payload)))
		out = append(out, e.Payload...)
	}
	return out
}

// DecodeCapabilities parses a capabilities-response element sequence.
// Unknown categories are silently skipped for forward compatibility
// (§4.1); known categories failing their length bounds return the
// category-specific error and the decode stops.
func DecodeCapabilities(buf []byte) ([]ConfigElement, ErrorCode) {
	return decodeConfigElements(buf, false)
}

// DecodeConfiguration parses a Set-Configuration/Reconfigure element
// sequence used as a *configuration* rather than *capabilities*: unknown
// categories are rejected (§4.1) and the result must satisfy the
// exactly-one-codec, configurable-mask invariant (§3), checked by callers
// via ValidateConfiguration.
func DecodeConfiguration(buf []byte) ([]ConfigElement, ErrorCode) {
	return decodeConfigElements(buf, true)
}

func decodeConfigElements(buf []byte, rejectUnknown bool) ([]ConfigElement, ErrorCode) {
	var elems []ConfigElement
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, ErrBadLength
		}
		cat := CategoryID(buf[0])
		n := int(buf[1])
		buf = buf[2:]
		if n > len(buf) {
			return nil, ErrBadLength
		}
		payload := buf[:n]
		buf = buf[n:]

		bounds, known := categoryLengths[cat]
		if !known {
			if rejectUnknown {
				return nil, ErrBadServCategory
			}
			continue
		}
		if n < bounds.min || n > bounds.max {
			return nil, categoryLengthError(cat)
		}
		elems = append(elems, ConfigElement{Category: cat, Payload: payload})
	}
	return elems, ErrSuccess
}

func categoryLengthError(cat CategoryID) ErrorCode {
	switch cat {
	case CatRecovery:
		return ErrBadRecoveryFormat
	case CatContentProtect:
		return ErrBadCPFormat
	case CatHeaderCompress:
		return ErrBadRohcFormat
	case CatMultiplexing:
		return ErrBadMultiplexFmt
	case CatCodec:
		return ErrBadPayloadFormat
	default:
		return ErrBadServCategory
	}
}

// ValidateConfiguration enforces the §3 SEP Configuration invariant: exactly
// one codec element, and no category bit set outside configurableMask.
func ValidateConfiguration(elems []ConfigElement) ErrorCode {
	codecCount := 0
	mask := 0
	for _, e := range elems {
		bit := 1 << e.Category
		if bit&configurableMask == 0 {
			return ErrBadServCategory
		}
		mask |= bit
		if e.Category == CatCodec {
			codecCount++
		}
	}
	if codecCount != 1 {
		return ErrInvalidCapability
	}
	return ErrSuccess
}
