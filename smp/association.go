package smp

import "github.com/keepQASSA/system-bt"

// scIOCapMatrix implements the Bluetooth Core Vol 3 Part H §2.3.5 IO
// capability table for Secure Connections, keyed by [initiator][responder].
// Both OOB-absent cells; OOB presence is checked separately (selectModel).
var scIOCapMatrix = [5][5]AssociationModel{
	IODisplayOnly:     {IODisplayOnly: ModelSCJustWorks, IODisplayYesNo: ModelSCJustWorks, IOKeyboardOnly: ModelSCPasskeyInitDisplays, IONoInputNoOutput: ModelSCJustWorks, IOKeyboardDisplay: ModelSCPasskeyInitDisplays},
	IODisplayYesNo:    {IODisplayOnly: ModelSCJustWorks, IODisplayYesNo: ModelSCNumericCompare, IOKeyboardOnly: ModelSCPasskeyInitDisplays, IONoInputNoOutput: ModelSCJustWorks, IOKeyboardDisplay: ModelSCNumericCompare},
	IOKeyboardOnly:    {IODisplayOnly: ModelSCPasskeyRespDisplays, IODisplayYesNo: ModelSCPasskeyRespDisplays, IOKeyboardOnly: ModelSCPasskeyInitDisplays, IONoInputNoOutput: ModelSCJustWorks, IOKeyboardDisplay: ModelSCPasskeyRespDisplays},
	IONoInputNoOutput: {IODisplayOnly: ModelSCJustWorks, IODisplayYesNo: ModelSCJustWorks, IOKeyboardOnly: ModelSCJustWorks, IONoInputNoOutput: ModelSCJustWorks, IOKeyboardDisplay: ModelSCJustWorks},
	IOKeyboardDisplay: {IODisplayOnly: ModelSCPasskeyRespDisplays, IODisplayYesNo: ModelSCNumericCompare, IOKeyboardOnly: ModelSCPasskeyInitDisplays, IONoInputNoOutput: ModelSCJustWorks, IOKeyboardDisplay: ModelSCNumericCompare},
}

// legacyIOCapMatrix mirrors the same table for legacy pairing, collapsing
// the passkey-direction distinction into a single ModelPasskey (the
// direction is resolved from which side has the display at runtime).
var legacyIOCapMatrix = [5][5]AssociationModel{
	IODisplayOnly:     {IODisplayOnly: ModelEncryptionOnly, IODisplayYesNo: ModelEncryptionOnly, IOKeyboardOnly: ModelPasskey, IONoInputNoOutput: ModelEncryptionOnly, IOKeyboardDisplay: ModelPasskey},
	IODisplayYesNo:    {IODisplayOnly: ModelEncryptionOnly, IODisplayYesNo: ModelEncryptionOnly, IOKeyboardOnly: ModelPasskey, IONoInputNoOutput: ModelEncryptionOnly, IOKeyboardDisplay: ModelPasskey},
	IOKeyboardOnly:    {IODisplayOnly: ModelPasskey, IODisplayYesNo: ModelPasskey, IOKeyboardOnly: ModelPasskey, IONoInputNoOutput: ModelEncryptionOnly, IOKeyboardDisplay: ModelPasskey},
	IONoInputNoOutput: {IODisplayOnly: ModelEncryptionOnly, IODisplayYesNo: ModelEncryptionOnly, IOKeyboardOnly: ModelEncryptionOnly, IONoInputNoOutput: ModelEncryptionOnly, IOKeyboardDisplay: ModelEncryptionOnly},
	IOKeyboardDisplay: {IODisplayOnly: ModelPasskey, IODisplayYesNo: ModelPasskey, IOKeyboardOnly: ModelPasskey, IONoInputNoOutput: ModelEncryptionOnly, IOKeyboardDisplay: ModelPasskey},
}

// selectAssociationModel implements §4.3.2: computed from both sides' IO
// capabilities, SC-support, MITM, and OOB flags.
func selectAssociationModel(localIOCap, peerIOCap IOCapability, localAuthReq, peerAuthReq AuthReq, localOOB, peerOOB OOBDataFlag, weInitiated bool) AssociationModel {
	sc := localAuthReq&AuthReqSC != 0 && peerAuthReq&AuthReqSC != 0
	mitm := localAuthReq&AuthReqMITM != 0 || peerAuthReq&AuthReqMITM != 0
	oob := localOOB == OOBPresent || peerOOB == OOBPresent

	if sc {
		if oob {
			return ModelSCOOB
		}
		if !mitm {
			return ModelSCJustWorks
		}
		init, resp := localIOCap, peerIOCap
		if !weInitiated {
			init, resp = peerIOCap, localIOCap
		}
		return scIOCapMatrix[init][resp]
	}

	if oob {
		return ModelOOB
	}
	if !mitm {
		return ModelEncryptionOnly
	}
	init, resp := localIOCap, peerIOCap
	if !weInitiated {
		init, resp = peerIOCap, localIOCap
	}
	return legacyIOCapMatrix[init][resp]
}

// hasDisplayCapability reports whether an IO capability can show a value
// to the user (Core Spec Vol 3 Part H Table 2.8).
func hasDisplayCapability(c IOCapability) bool {
	return c == IODisplayOnly || c == IODisplayYesNo || c == IOKeyboardDisplay
}

// legacyPasskeyDisplayer resolves the direction association.go's doc
// comment defers to runtime: the side with a display shows the passkey; if
// both or neither side can display, the initiator shows it.
func (e *Engine) legacyPasskeyDisplayer() bool {
	localDisplay := hasDisplayCapability(e.p.LocalIOCap)
	peerDisplay := hasDisplayCapability(e.p.PeerIOCap)
	if localDisplay != peerDisplay {
		return localDisplay
	}
	return e.p.flags.weInitiated
}

// resolveLegacyTK computes this side's Temporary Key for legacy pairing
// (§8's association-model-to-TK mapping): EncryptionOnly uses the all-zero
// TK; Passkey packs the app-supplied six-digit value into the last 4
// octets big-endian (Core Spec Vol 3 Part H §2.3.5.1); OOB uses whatever
// randomizer the application exchanged with this peer over the side
// channel, or the all-zero TK if this side has none ("randomizers may come
// from one, both, or neither side", §1).
func (e *Engine) resolveLegacyTK() [16]byte {
	switch e.p.model {
	case ModelPasskey:
		e.p.passkey = e.app.PasskeyRequest(e.p.peer)
		if e.legacyPasskeyDisplayer() {
			e.app.PasskeyNotify(e.p.peer, e.p.passkey)
		}
		var tk [16]byte
		tk[12] = byte(e.p.passkey >> 24)
		tk[13] = byte(e.p.passkey >> 16)
		tk[14] = byte(e.p.passkey >> 8)
		tk[15] = byte(e.p.passkey)
		return tk
	case ModelOOB:
		if oob, ok := e.app.OOBRequest(e.p.peer); ok {
			return oob
		}
		return [16]byte{}
	default:
		return [16]byte{}
	}
}

// checkSCOnlyPolicy implements the §4.3.2 policy gate: if SC-only mode is
// required and the selected model is not SC, or is SC_JUSTWORKS, fail
// immediately with PAIR_AUTH_FAIL.
func checkSCOnlyPolicy(cfg Config, model AssociationModel) *btstack.Error {
	if !cfg.SecureConnectionsOnlyModeRequired {
		return nil
	}
	if !model.IsSC() || model == ModelSCJustWorks {
		return btstack.NewError(btstack.PolicyRefused, nil)
	}
	return nil
}
