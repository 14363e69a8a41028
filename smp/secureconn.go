package smp

import (
	"github.com/keepQASSA/system-bt"
	"github.com/keepQASSA/system-bt/crypto"
)

// validatePeerPublicKey implements §4.3.4 step 1: "the engine validates
// the point is on curve P-256 (ECC_ValidatePoint); a failure or equality
// with local key yields PAIR_AUTH_FAIL."
func validatePeerPublicKey(provider crypto.Provider, local, peer crypto.PublicKeyP256) *btstack.Error {
	if !provider.ValidatePoint(peer) {
		return btstack.NewError(btstack.CryptoFailure, nil)
	}
	if peer.X == local.X && peer.Y == local.Y {
		return btstack.NewError(btstack.CryptoFailure, nil)
	}
	return nil
}

// computeDHKey implements §4.3.4 step 2, run once both public keys are
// present.
func computeDHKey(provider crypto.Provider, priv crypto.PrivateKeyP256, peerPub crypto.PublicKeyP256) ([32]byte, *btstack.Error) {
	dhKey, err := provider.ECDH(priv, peerPub)
	if err != nil {
		return [32]byte{}, btstack.NewError(btstack.CryptoFailure, err)
	}
	return dhKey, nil
}

// responderCommitment computes Cb = f4(PKbx, PKax, Nb, 0) for the
// JustWorks/Numeric-Comparison branch of §4.3.4 step 3.
func responderCommitment(provider crypto.Provider, respPub, initPub crypto.PublicKeyP256, respNonce [16]byte) [16]byte {
	return provider.F4(respPub.X, initPub.X, respNonce, 0)
}

// passkeyBit derives round i's 1-bit contribution from the shared passkey
// (§4.3.4 step 3 Passkey branch): bit i of the 20-bit passkey, LSB first.
func passkeyBit(passkey uint32, round int) byte {
	return byte(passkey>>uint(round)) & 0x01
}

// passkeyRoundCommitment computes Cxi = f4(PKbx, PKax, Nxi, rxi) for round
// i of the 20-round passkey exchange, from whichever side's perspective
// the caller is computing (§4.3.4 step 3 Passkey branch).
func passkeyRoundCommitment(provider crypto.Provider, respPub, initPub crypto.PublicKeyP256, nonce [16]byte, passkey uint32, round int) [16]byte {
	return provider.F4(respPub.X, initPub.X, nonce, passkeyBit(passkey, round))
}

// oobCommitment computes Ca = f4(PKax, PKax, ra, 0) for the OOB branch
// (§4.3.4 step 3).
func oobCommitment(provider crypto.Provider, pub crypto.PublicKeyP256, randomizer [16]byte) [16]byte {
	return provider.F4(pub.X, pub.X, randomizer, 0)
}

// phase2Keys implements §4.3.5: MacKey||LTK = f5(DHKey, Na, Nb, A, B).
func phase2Keys(provider crypto.Provider, dhKey [32]byte, na, nb [16]byte, a, b [7]byte) (macKey, ltk [16]byte) {
	return provider.F5(dhKey, na, nb, a, b)
}

// dhKeyCheck computes Ea (initiator) or Eb (responder) per §4.3.5:
// f6(MacKey, Nx, Ny, ry, IOcapX, X, Y).
func dhKeyCheck(provider crypto.Provider, macKey [16]byte, nx, ny, ry [16]byte, iocapX crypto.IOCap, x, y [7]byte) [16]byte {
	return provider.F6(macKey, nx, ny, ry, iocapX, x, y)
}

// numericComparisonValue computes g2(PKax, PKbx, Na, Nb) mod 10^6 for the
// SC_NUMERIC_COMPARE scenario (§4.3.5 end-to-end scenario 2, §8 scenario 2).
func numericComparisonValue(provider crypto.Provider, initPub, respPub crypto.PublicKeyP256, na, nb [16]byte) uint32 {
	return provider.G2(initPub.X, respPub.X, na, nb) % 1000000
}
