package smp

import (
	"testing"

	"github.com/keepQASSA/system-bt/smp/smptest"
)

func TestDeriveBREDRFromLEMatchesH6OrH7(t *testing.T) {
	provider := smptest.Provider{}
	var ltk [16]byte
	for i := range ltk {
		ltk[i] = byte(i)
	}

	h6 := DeriveBREDRFromLE(provider, ltk, false)
	if h6 != provider.H6(ltk, keyIDBREDRFromLE) {
		t.Fatalf("expected h6 derivation when CT2 isn't mutually supported")
	}
	h7 := DeriveBREDRFromLE(provider, ltk, true)
	if h7 != provider.H7(h7Salt, ltk) {
		t.Fatalf("expected h7 derivation when CT2 is mutually supported")
	}
	if h6 == h7 {
		t.Fatalf("h6 and h7 derivations of the same LTK must not collide")
	}
}

func TestDeriveLEFromBREDRMatchesH6OrH7(t *testing.T) {
	provider := smptest.Provider{}
	var linkKey [16]byte
	for i := range linkKey {
		linkKey[i] = byte(i + 1)
	}

	h6 := DeriveLEFromBREDR(provider, linkKey, false)
	if h6 != provider.H6(linkKey, keyIDLEFromBREDR) {
		t.Fatalf("expected h6 derivation when CT2 isn't mutually supported")
	}
	h7 := DeriveLEFromBREDR(provider, linkKey, true)
	if h7 != provider.H7(h7Salt, linkKey) {
		t.Fatalf("expected h7 derivation when CT2 is mutually supported")
	}
}

func TestCheckCrossTransportPolicyBlocksDowngrade(t *testing.T) {
	if err := CheckCrossTransportPolicy(AuthAuthenticatedSC, AuthUnauthenticated); err == nil {
		t.Fatalf("expected a more-authenticated existing key to block an unauthenticated derived key")
	}
	if err := CheckCrossTransportPolicy(AuthUnauthenticated, AuthAuthenticatedSC); err != nil {
		t.Fatalf("expected a stronger derived key to be accepted, got %v", err)
	}
	if err := CheckCrossTransportPolicy(AuthAuthenticated, AuthAuthenticated); err != nil {
		t.Fatalf("expected an equal-strength derived key to be accepted, got %v", err)
	}
}
