package smp

import (
	"testing"
	"time"
)

func waitCompletions(t *testing.T, pe *pairedEngines) (a, b completion) {
	t.Helper()
	a, ok := pe.appA.lastCompletion()
	if !ok {
		t.Fatalf("engine A never completed")
	}
	b, ok = pe.appB.lastCompletion()
	if !ok {
		t.Fatalf("engine B never completed")
	}
	return a, b
}

func TestLegacyJustWorksInitiatorCompletes(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	// Both masks requested ENC|ID on both sides; bonding completes
	// synchronously through the mock transport's FIFO bus, leaving both
	// engines parked in BondPending with their delayed-auth tail armed.
	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected both sides to succeed, got a=%+v b=%+v", a, b)
	}
	if a.level != SecurityUnauthenticated || b.level != SecurityUnauthenticated {
		t.Fatalf("JustWorks/EncryptionOnly should reach Unauthenticated, got a=%v b=%v", a.level, b.level)
	}
	if pe.a.p.localIKey != 0 || pe.a.p.localRKey != 0 {
		t.Fatalf("engine A masks not fully cleared: %v/%v", pe.a.p.localIKey, pe.a.p.localRKey)
	}
	if pe.b.p.localIKey != 0 || pe.b.p.localRKey != 0 {
		t.Fatalf("engine B masks not fully cleared: %v/%v", pe.b.p.localIKey, pe.b.p.localRKey)
	}
}

func TestZeroizedOnCompletion(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)
	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}
	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	if _, ok := pe.appA.lastCompletion(); !ok {
		t.Fatalf("engine A never completed")
	}
	var zero [16]byte
	if pe.a.p.state != StateIdle {
		t.Fatalf("expected PCB back to idle after completion, got %v", pe.a.p.state)
	}
	if pe.a.p.localNonce != zero || pe.a.p.ltk != zero {
		t.Fatalf("expected PCB zeroized after completion: nonce=%v ltk=%v", pe.a.p.localNonce, pe.a.p.ltk)
	}
}

func TestSCDerivesCrossTransportLinkKey(t *testing.T) {
	pe := newPairedEngines(t, IODisplayYesNo, IODisplayYesNo, AuthReqSC|AuthReqMITM|AuthReqBonding|AuthReqCT2, AuthReqSC|AuthReqMITM|AuthReqBonding|AuthReqCT2)
	pe.appA.numericOK = true
	pe.appB.numericOK = true
	pe.appA.initKeyDist |= KeyDistLK
	pe.appA.respKeyDist |= KeyDistLK
	pe.appB.initKeyDist |= KeyDistLK
	pe.appB.respKeyDist |= KeyDistLK

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected both sides to succeed, got a=%+v b=%+v", a, b)
	}

	pe.appA.mu.Lock()
	keysA := pe.appA.derivedLinkKeys
	pe.appA.mu.Unlock()
	pe.appB.mu.Lock()
	keysB := pe.appB.derivedLinkKeys
	pe.appB.mu.Unlock()

	if len(keysA) != 1 || len(keysB) != 1 {
		t.Fatalf("expected exactly one derived link key per side, got a=%d b=%d", len(keysA), len(keysB))
	}
	if keysA[0].key != keysB[0].key {
		t.Fatalf("both sides must derive the same BR/EDR link key: a=%v b=%v", keysA[0].key, keysB[0].key)
	}
	var zero [16]byte
	if keysA[0].key == zero {
		t.Fatalf("derived link key must not be zero")
	}
}

func TestLegacyPasskeyCompletes(t *testing.T) {
	pe := newPairedEngines(t, IOKeyboardOnly, IODisplayOnly, AuthReqMITM|AuthReqBonding, AuthReqMITM|AuthReqBonding)
	pe.appA.passkey = 482913
	pe.appB.passkey = 482913

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected legacy passkey pairing to succeed, got a=%+v b=%+v", a, b)
	}
	if a.level != SecurityAuthenticated || b.level != SecurityAuthenticated {
		t.Fatalf("expected Authenticated level (MITM via passkey), got a=%v b=%v", a.level, b.level)
	}
}

func TestLegacyPasskeyMismatchFails(t *testing.T) {
	pe := newPairedEngines(t, IOKeyboardOnly, IODisplayOnly, AuthReqMITM, AuthReqMITM)
	pe.appA.passkey = 111111
	pe.appB.passkey = 222222 // the two sides disagree, like a mistyped passkey

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	a, okA := pe.appA.lastCompletion()
	b, okB := pe.appB.lastCompletion()
	if !okA && !okB {
		t.Fatalf("expected at least one side to report a failure")
	}
	if okA && a.success {
		t.Fatalf("expected engine A to fail on mismatched legacy passkey, got success")
	}
	if okB && b.success {
		t.Fatalf("expected engine B to fail on mismatched legacy passkey, got success")
	}
}

func TestLegacyOOBUsesExchangedRandomizer(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)
	pe.appA.oob = OOBPresent
	pe.appB.oob = OOBPresent
	pe.appA.haveOOB = true
	pe.appA.oobData = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	pe.appB.haveOOB = true
	pe.appB.oobData = pe.appA.oobData

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}
	if pe.a.p.model != ModelOOB {
		// sanity: confirms the association-model selection actually picked
		// the branch this test means to exercise (checked before the tail
		// timers fire, since completion zeroizes the PCB)
		t.Fatalf("expected ModelOOB to be selected, got %v", pe.a.p.model)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected legacy OOB pairing to succeed, got a=%+v b=%+v", a, b)
	}
}

func TestLegacyOOBMismatchedRandomizerFails(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)
	pe.appA.oob = OOBPresent
	pe.appB.oob = OOBPresent
	pe.appA.haveOOB = true
	pe.appA.oobData = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	pe.appB.haveOOB = true
	pe.appB.oobData = [16]byte{16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	a, okA := pe.appA.lastCompletion()
	b, okB := pe.appB.lastCompletion()
	if !okA && !okB {
		t.Fatalf("expected at least one side to report a failure")
	}
	if okA && a.success {
		t.Fatalf("expected engine A to fail on mismatched OOB data, got success")
	}
	if okB && b.success {
		t.Fatalf("expected engine B to fail on mismatched OOB data, got success")
	}
}

func TestSCNumericComparisonCompletes(t *testing.T) {
	pe := newPairedEngines(t, IODisplayYesNo, IODisplayYesNo, AuthReqSC|AuthReqMITM|AuthReqBonding, AuthReqSC|AuthReqMITM|AuthReqBonding)
	pe.appA.numericOK = true
	pe.appB.numericOK = true

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected SC numeric comparison to succeed, got a=%+v b=%+v", a, b)
	}
	if a.level != SecurityAuthenticatedSC || b.level != SecurityAuthenticatedSC {
		t.Fatalf("expected AuthenticatedSC level, got a=%v b=%v", a.level, b.level)
	}
}

func TestSCNumericComparisonUserRejects(t *testing.T) {
	pe := newPairedEngines(t, IODisplayYesNo, IODisplayYesNo, AuthReqSC|AuthReqMITM, AuthReqSC|AuthReqMITM)
	pe.appA.numericOK = true
	pe.appB.numericOK = false // responder's user rejects the comparison

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	b, ok := pe.appB.lastCompletion()
	if !ok {
		t.Fatalf("engine B never completed")
	}
	if b.success {
		t.Fatalf("expected engine B to fail on rejected numeric comparison")
	}
	if b.reason != ReasonNumericComparFail {
		t.Fatalf("expected ReasonNumericComparFail, got %v", b.reason)
	}
}

func TestSCPasskeyTwentyRoundsCompletes(t *testing.T) {
	pe := newPairedEngines(t, IOKeyboardOnly, IODisplayOnly, AuthReqSC|AuthReqMITM, AuthReqSC|AuthReqMITM)
	pe.appA.passkey = 482913
	pe.appB.passkey = 482913

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected SC passkey pairing to succeed, got a=%+v b=%+v", a, b)
	}
	if a.level != SecurityAuthenticatedSC || b.level != SecurityAuthenticatedSC {
		t.Fatalf("expected AuthenticatedSC level, got a=%v b=%v", a.level, b.level)
	}
	if pe.a.p.passkeyRound != 0 {
		t.Fatalf("expected round counter reset after zeroization, got %d", pe.a.p.passkeyRound)
	}
}

func TestSCPasskeyMismatchFails(t *testing.T) {
	pe := newPairedEngines(t, IOKeyboardOnly, IODisplayOnly, AuthReqSC|AuthReqMITM, AuthReqSC|AuthReqMITM)
	pe.appA.passkey = 111111
	pe.appB.passkey = 222222 // the two sides disagree, like a mistyped passkey

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	a, okA := pe.appA.lastCompletion()
	b, okB := pe.appB.lastCompletion()
	if !okA && !okB {
		t.Fatalf("expected at least one side to report a failure")
	}
	if okA && a.success {
		t.Fatalf("engine A should not have succeeded with mismatched passkeys")
	}
	if okB && b.success {
		t.Fatalf("engine B should not have succeeded with mismatched passkeys")
	}
}

func TestMalformedPairingRandomFailsWithInvalidParameters(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)

	// The in-memory bus runs a whole pairing to completion inside
	// StartPairing, so drive engine B by hand instead: a Pairing Request and
	// a (never verified) Pairing Confirm leave it in StateRandPending. Its
	// replies reach an idle engine A, which ignores them. Then deliver a
	// truncated Pairing Random directly to engine B.
	req := PairingReqRsp{IOCap: IONoInputNoOutput, MaxEncKeySize: 16, InitKeyDist: KeyDistENC | KeyDistID, RespKeyDist: KeyDistENC | KeyDistID}
	pe.b.Receive(1, EncodePDU(OpPairingRequest, req.Encode()))
	pe.b.Receive(1, EncodePDU(OpPairingConfirm, make([]byte, 16)))
	if pe.b.p.state != StateRandPending {
		t.Fatalf("expected engine B in StateRandPending, got %v", pe.b.p.state)
	}
	truncated := make([]byte, 16) // 1 opcode byte + 15 body bytes: one short
	truncated[0] = byte(OpPairingRandom)
	pe.b.Receive(1, truncated[:16])

	b, ok := pe.appB.lastCompletion()
	if !ok {
		t.Fatalf("engine B never completed")
	}
	if b.success {
		t.Fatalf("expected engine B to fail on truncated Pairing Random")
	}
	if b.reason != ReasonInvalidParameters {
		t.Fatalf("expected ReasonInvalidParameters, got %v", b.reason)
	}
}

func TestSCOnlyModeRejectsJustWorks(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)
	cfg := pe.a.cfg
	cfg.SecureConnectionsOnlyModeRequired = true
	pe.a.cfg = cfg
	pe.b.cfg = cfg

	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	a, okA := pe.appA.lastCompletion()
	if !okA || a.success {
		t.Fatalf("expected engine A to fail under SC-only policy, got %+v ok=%v", a, okA)
	}
	if a.reason != ReasonAuthFail {
		t.Fatalf("expected ReasonAuthFail, got %v", a.reason)
	}
}

func TestOffCurvePublicKeyRejected(t *testing.T) {
	pe := newPairedEngines(t, IODisplayYesNo, IODisplayYesNo, AuthReqSC|AuthReqMITM, AuthReqSC|AuthReqMITM)

	// Drive engine B by hand (StartPairing on A would run the whole exchange
	// through the in-memory bus): a Secure Connections Pairing Request leaves
	// B waiting on the initiator's public key.
	req := PairingReqRsp{IOCap: IODisplayYesNo, AuthReq: AuthReqSC | AuthReqMITM, MaxEncKeySize: 16, InitKeyDist: KeyDistENC | KeyDistID, RespKeyDist: KeyDistENC | KeyDistID}
	pe.b.Receive(1, EncodePDU(OpPairingRequest, req.Encode()))

	if pe.b.p.state != StatePublicKeyExch {
		t.Fatalf("expected engine B waiting on public key, got %v", pe.b.p.state)
	}
	badKey := PairingPublicKey{} // all-zero point is not on the P-256 curve
	body := badKey.Encode()
	buf := EncodePDU(OpPairingPublicKey, body)
	pe.b.Receive(1, buf)

	b, ok := pe.appB.lastCompletion()
	if !ok {
		t.Fatalf("engine B never completed")
	}
	if b.success {
		t.Fatalf("expected engine B to reject the off-curve public key")
	}
	if b.reason != ReasonAuthFail {
		t.Fatalf("expected ReasonAuthFail, got %v", b.reason)
	}
}

func TestSecurityRequestInitiatedPairingCompletes(t *testing.T) {
	pe := newPairedEngines(t, IONoInputNoOutput, IONoInputNoOutput, 0, 0)

	// Here B (the peripheral) asks A to start pairing. A has no policy layer
	// of its own in this harness, so the test drives StartPairing directly
	// the way a real central's security policy would react to the request.
	if err := pe.b.SendSecurityRequest(AuthReqBonding); err != nil {
		t.Fatalf("SendSecurityRequest: %v", err)
	}
	if pe.a.p.state != StateSecReqPending {
		t.Fatalf("expected engine A parked in StateSecReqPending, got %v", pe.a.p.state)
	}
	if err := pe.a.StartPairing(); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}

	pe.timerA.Fire(timerHandleFor(addrB()))
	pe.timerB.Fire(timerHandleFor(addrA()))

	a, b := waitCompletions(t, pe)
	if !a.success || !b.success {
		t.Fatalf("expected security-request-initiated pairing to succeed, got a=%+v b=%+v", a, b)
	}
}

func TestDelayedAuthTailConfigHoldsAssignedDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DelayedAuthTail = 250 * time.Millisecond
	if cfg.DelayedAuthTail != 250*time.Millisecond {
		t.Fatalf("config not applied")
	}
}
