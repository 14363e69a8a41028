// Package avdtp implements the AVDTP signaling engine (spec §4.2): wire
// codec, fragmentation/reassembly, CCB/SCB dispatch, and timers. Media-plane
// transport and AVCTP message content are out of scope (§1 Non-goals).
package avdtp

// MessageType is the 2-bit message-type field of the signaling header.
type MessageType byte

const (
	MsgCommand        MessageType = 0
	MsgGeneralReject  MessageType = 1
	MsgResponseAccept MessageType = 2
	MsgResponseReject MessageType = 3
)

// PacketType is the 2-bit packet-type field. Valid per-direction sequences
// form the regular language SINGLE | START CONT* END (§3 invariant).
type PacketType byte

const (
	PacketSingle PacketType = 0
	PacketStart  PacketType = 1
	PacketCont   PacketType = 2
	PacketEnd    PacketType = 3
)

// SignalID identifies an AVDTP signaling procedure. Values 1..13 are
// defined (§4.1, delay-report is 13); 0 and >13 are rejected (§8 boundary
// property).
type SignalID byte

const (
	SigDiscover           SignalID = 1
	SigGetCapabilities    SignalID = 2
	SigSetConfiguration   SignalID = 3
	SigGetConfiguration   SignalID = 4
	SigReconfigure        SignalID = 5
	SigOpen               SignalID = 6
	SigStart              SignalID = 7
	SigClose              SignalID = 8
	SigSuspend            SignalID = 9
	SigAbort              SignalID = 10
	SigSecurityControl    SignalID = 11
	SigGetAllCapabilities SignalID = 12
	SigDelayReport        SignalID = 13

	sigMin = SigDiscover
	sigMax = SigDelayReport
)

// Valid reports whether id is one of the 13 defined signals.
func (id SignalID) Valid() bool {
	return id >= sigMin && id <= sigMax
}

// CategoryID identifies a service capability/configuration element.
type CategoryID byte

const (
	CatMediaTransport   CategoryID = 1
	CatReporting        CategoryID = 2
	CatRecovery         CategoryID = 3
	CatContentProtect   CategoryID = 4
	CatHeaderCompress   CategoryID = 5
	CatMultiplexing     CategoryID = 6
	CatCodec            CategoryID = 7
	CatDelayReport      CategoryID = 8

	catMin = CatMediaTransport
	catMax = CatDelayReport
)

// categoryLength is the (min, max) payload length allowed for a category,
// enforced while parsing (§4.1 "per-category min/max length tables").
// Codec and content-protection carry variable-length payloads up to 96
// bytes in current use (§3 SEP Configuration entity).
type categoryLength struct {
	min, max int
}

var categoryLengths = map[CategoryID]categoryLength{
	CatMediaTransport: {0, 0},
	CatReporting:      {0, 0},
	CatRecovery:       {3, 3},
	CatContentProtect: {2, 96},
	CatHeaderCompress: {1, 1},
	CatMultiplexing:   {2, 10},
	CatCodec:          {2, 96},
	CatDelayReport:    {0, 0},
}

// configurableMask is the set of category bits a *configuration* (as
// opposed to a *capabilities* response) may set (§3 invariant).
const configurableMask = 1<<CatMediaTransport | 1<<CatReporting | 1<<CatRecovery |
	1<<CatContentProtect | 1<<CatHeaderCompress | 1<<CatMultiplexing | 1<<CatCodec | 1<<CatDelayReport

// ErrorCode is the 1-byte AVDTP error code a parser or handler returns.
// Zero means success.
type ErrorCode byte

const (
	ErrSuccess           ErrorCode = 0x00
	ErrBadHeaderFormat   ErrorCode = 0x01
	ErrBadLength         ErrorCode = 0x11
	ErrBadAcpSEID        ErrorCode = 0x12
	ErrSEPInUse          ErrorCode = 0x13
	ErrSEPNotInUse       ErrorCode = 0x14
	ErrBadServCategory   ErrorCode = 0x17
	ErrBadPayloadFormat  ErrorCode = 0x18
	ErrNotSupportedCmd   ErrorCode = 0x19
	ErrInvalidCapability ErrorCode = 0x1A
	ErrBadRecoveryType   ErrorCode = 0x22
	ErrBadMediaTransport ErrorCode = 0x23
	ErrBadRecoveryFormat ErrorCode = 0x25
	ErrBadRohcFormat     ErrorCode = 0x26
	ErrBadCPFormat       ErrorCode = 0x27
	ErrBadMultiplexFmt   ErrorCode = 0x28
	ErrUnsupportedConfig ErrorCode = 0x29
	ErrBadState          ErrorCode = 0x31
)

// eventID distinguishes CCB-scoped events from SCB-scoped (SEID-keyed)
// events by a high bit, per the §9 design note replacing function-pointer
// dispatch tables with a tagged enum.
type eventID byte

const scbEventBit eventID = 0x80

// evStartCmd/evStartRsp/evSuspendCmd/evSuspendRsp are CCB events, not SCB
// events (§4.2: "CCB events (discover, get-cap, start, suspend)") — a
// Start/Suspend command carries a *list* of ACP_SEIDs, one per stream being
// started/suspended together, not the single SEID an SCB event is keyed by.
const (
	evDiscoverCmd eventID = iota
	evDiscoverRsp
	evGetCapabilitiesCmd
	evGetCapabilitiesRsp
	evGetAllCapabilitiesCmd
	evGetAllCapabilitiesRsp
	evStartCmd
	evStartRsp
	evSuspendCmd
	evSuspendRsp
	evGeneralReject
)

const (
	evSetConfigurationCmd eventID = scbEventBit + iota
	evSetConfigurationRsp
	evGetConfigurationCmd
	evGetConfigurationRsp
	evReconfigureCmd
	evReconfigureRsp
	evOpenCmd
	evOpenRsp
	evCloseCmd
	evCloseRsp
	evAbortCmd
	evAbortRsp
	evSecurityControlCmd
	evSecurityControlRsp
	evDelayReportCmd
	evDelayReportRsp
)

func (e eventID) isSCBEvent() bool {
	return e&scbEventBit != 0
}

// cmdToEvent maps a command's signal id to its event, per §4.2 "Parsers map
// signals to events via two tables".
var cmdToEvent = map[SignalID]eventID{
	SigDiscover:           evDiscoverCmd,
	SigGetCapabilities:    evGetCapabilitiesCmd,
	SigSetConfiguration:   evSetConfigurationCmd,
	SigGetConfiguration:   evGetConfigurationCmd,
	SigReconfigure:        evReconfigureCmd,
	SigOpen:               evOpenCmd,
	SigStart:              evStartCmd,
	SigClose:              evCloseCmd,
	SigSuspend:            evSuspendCmd,
	SigAbort:              evAbortCmd,
	SigSecurityControl:    evSecurityControlCmd,
	SigGetAllCapabilities: evGetAllCapabilitiesCmd,
	SigDelayReport:        evDelayReportCmd,
}

// rspToEvent maps a response/reject's signal id (taken from the matching
// outstanding command) to its event.
var rspToEvent = map[SignalID]eventID{
	SigDiscover:           evDiscoverRsp,
	SigGetCapabilities:    evGetCapabilitiesRsp,
	SigSetConfiguration:   evSetConfigurationRsp,
	SigGetConfiguration:   evGetConfigurationRsp,
	SigReconfigure:        evReconfigureRsp,
	SigOpen:               evOpenRsp,
	SigStart:              evStartRsp,
	SigClose:              evCloseRsp,
	SigSuspend:            evSuspendRsp,
	SigAbort:              evAbortRsp,
	SigSecurityControl:    evSecurityControlRsp,
	SigGetAllCapabilities: evGetAllCapabilitiesRsp,
	SigDelayReport:        evDelayReportRsp,
}

// retransmitSignals is the set of commands that use the retransmit timer;
// the rest use the response timer, and delay-report uses neither (§4.2).
var retransmitSignals = map[SignalID]bool{
	SigSetConfiguration: true,
	SigReconfigure:      true,
	SigOpen:             true,
	SigStart:            true,
	SigClose:            true,
	SigSuspend:          true,
	SigAbort:            true,
}
