package avdtp

import "github.com/keepQASSA/system-bt"

// Event is what msgInd hands to the owning Manager once a reassembled PDU
// has been classified: which CCB/SCB it belongs to, the tagged event kind
// (§9 design note: "re-express as a tagged enum... and a pure dispatch
// function"), the SEID for SCB events, and the remaining undecoded body so
// the per-signal handler can run the codec itself.
type Event struct {
	CCB    Handle
	SCB    Handle // InvalidHandle for CCB-scoped events
	id     eventID
	Label  byte
	Signal SignalID
	Msg    MessageType
	SEID   byte
	// SEIDs holds the full stream list for a Start/Suspend command, decoded
	// from its body (§4.2); nil for every other event.
	SEIDs []byte
	Body  []byte
}

// IsReject reports whether this event is a General-Reject or Pairing-style
// reject the caller should treat as a failed command rather than parse
// further.
func (e Event) IsReject() bool {
	return e.Msg == MsgGeneralReject || e.Msg == MsgResponseReject
}

// msgInd parses a reassembled AVDTP message and classifies it into an
// Event, or returns a General-Reject outcome for the caller to send. It
// implements §4.2 "Dispatch (msg_ind)".
//
// rejectSignal is non-zero only when the caller must send a General-Reject
// back (command with signal-id 0 or out of the defined range); ok is false
// when the message must be silently dropped (mismatched or out-of-range
// response/reject).
func (c *ccb) msgInd(buf []byte) (ev Event, rejectSignal SignalID, ok bool) {
	if len(buf) < 2 {
		return Event{}, 0, false
	}
	label := buf[0] >> 4 & 0x0F
	msg := MessageType(buf[0] & 0x03)
	signal := SignalID(buf[1] & 0x3F)
	body := buf[2:]

	if msg == MsgCommand {
		if signal == 0 || signal > sigMax {
			return Event{}, signal, false
		}
		id, known := cmdToEvent[signal]
		if !known {
			return Event{}, signal, false
		}
		ev = Event{CCB: c.handle, id: id, Label: label, Signal: signal, Msg: msg, Body: body}
		if id.isSCBEvent() {
			ev.SEID = peekSEID(signal, body)
		} else if signal == SigStart || signal == SigSuspend {
			ev.SEIDs = parseSEIDList(body)
		}
		return ev, 0, true
	}

	// Response or reject: cross-check against the outstanding command
	// (§4.2 "cross-check against the current outstanding command's
	// signal-id and label; mismatches are dropped").
	out := c.outstanding
	if out == nil || out.label != label || out.signal != signal {
		return Event{}, 0, false
	}
	id, known := rspToEvent[out.signal]
	if !known {
		return Event{}, 0, false
	}
	ev = Event{CCB: c.handle, id: id, Label: label, Signal: out.signal, Msg: msg, Body: body}
	if id.isSCBEvent() {
		ev.SEID = out.seid
	}
	return ev, 0, true
}

// peekSEID extracts the ACP SEID from a command body, for signals that
// carry one as their first byte (all SCB-scoped signals except Abort,
// which also carries one in the first byte — both encode (seid<<2)).
func peekSEID(signal SignalID, body []byte) byte {
	if len(body) < 1 {
		return 0
	}
	return body[0] >> 2 & 0x3F
}

// parseSEIDList decodes a Start/Suspend command body: one ACP_SEID octet
// per stream being started/suspended together (§4.2), each encoded the same
// way a single SEID is (seid<<2 in the top 6 bits).
func parseSEIDList(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	seids := make([]byte, len(body))
	for i, b := range body {
		seids[i] = b >> 2 & 0x3F
	}
	return seids
}

// generalReject builds the wire bytes for a General-Reject reply to an
// unrecognized command signal (§4.2: "For a command whose signal-id is 0
// or > 12 [see DESIGN.md resolution], reply with a General-Reject.").
// Abort is special-cased by callers: never reply with a reject (§4.2).
func generalReject(label byte, signal SignalID) []byte {
	h := EncodeHeader(Header{Label: label, Packet: PacketSingle, Msg: MsgGeneralReject, Signal: signal})
	return h
}

// errDropped is a sentinel used by Manager.Receive to distinguish "dropped
// per protocol rule, not a bug" from real transport/codec errors.
var errDropped = btstack.NewError(btstack.StateViolation, nil)
