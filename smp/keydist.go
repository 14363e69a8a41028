package smp

import "github.com/keepQASSA/system-bt/transport"

// applyLKPolicyGate clears the LK bit from both masks unless both sides
// requested it, SC is in use, and it isn't otherwise disabled — "the
// link-key (LK) path is valid only when both sides requested it AND SC is
// in use AND not disabled by policy — otherwise it is cleared before
// distribution begins" (§4.3.3).
func applyLKPolicyGate(p *pcb, policyDisablesLK bool) {
	bothWantLK := p.localIKey&KeyDistLK != 0 && p.localRKey&KeyDistLK != 0
	if !p.flags.scModeInUse || !bothWantLK || policyDisablesLK {
		p.localIKey &^= KeyDistLK
		p.localRKey &^= KeyDistLK
	} else {
		p.flags.deriveLK = true
	}
}

// applySCDerivedBits clears ENC and LK from both masks when SC is in use:
// "In SC mode, ENC and LK bits are derived locally, not exchanged — both
// masks clear those bits" (§4.3.3 mask-update rule).
func applySCDerivedBits(p *pcb) {
	if !p.flags.scModeInUse {
		return
	}
	p.localIKey &^= KeyDistENC | KeyDistLK
	p.localRKey &^= KeyDistENC | KeyDistLK
}

// nextKeyToSend returns the next key-type bit this side (as responder or
// initiator per weAreResponder) should distribute, walking keyDistOrder,
// or false if nothing remains to send from our side this round.
//
// "responder walks local_r_key; initiator walks its own local_i_key only
// when responder has no keys left to send" (§4.3.3).
func nextKeyToSend(p *pcb, weAreResponder bool) (KeyDistMask, bool) {
	if weAreResponder {
		for _, bit := range keyDistOrder {
			if p.localRKey&bit != 0 {
				return bit, true
			}
		}
		return 0, false
	}
	if p.localRKey != 0 {
		return 0, false // responder still has keys outstanding
	}
	for _, bit := range keyDistOrder {
		if p.localIKey&bit != 0 {
			return bit, true
		}
	}
	return 0, false
}

// clearSent clears bit from the mask of the side that just sent it.
func clearSent(p *pcb, weAreResponder bool, bit KeyDistMask) {
	if weAreResponder {
		p.localRKey &^= bit
	} else {
		p.localIKey &^= bit
	}
}

// clearReceived clears bit from the mask of the side that just received
// it: "responder's local_r_key for keys it sends, local_i_key for keys it
// receives; initiator mirror-symmetric" (§4.3.3 mask-update rule).
func clearReceived(p *pcb, weAreResponder bool, bit KeyDistMask) {
	if weAreResponder {
		p.localIKey &^= bit
	} else {
		p.localRKey &^= bit
	}
}

// bondingComplete reports whether both masks have reached zero and no
// outbound key PDU is unacknowledged — the precondition for scheduling the
// delayed-auth tail (§4.3.3).
func bondingComplete(p *pcb) bool {
	return p.localIKey == 0 && p.localRKey == 0 && p.unackedTx == 0
}

// scheduleTailDelay arms the one-shot delayed-auth timer before declaring
// pairing success, covering the race where a peer rejects the
// last-distributed key (§4.3.3 "Tail delay").
func scheduleTailDelay(timer transport.Timer, handle transport.TimerHandle, ms int, onFire func()) {
	timer.SetOneshot(handle, ms, onFire)
}
