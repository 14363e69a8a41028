// Package crypto declares the pure-function cryptographic collaborator
// smp depends on (§6: "Crypto primitives (consumed)"). The spec explicitly
// keeps ECC-P-256 and AES-CMAC out of this module's scope — every function
// here is a pure transform with no state and no side effects, so the state
// machine can be driven and tested against any Provider, including a fake
// one that returns fixed values. See smp/smptest for the one concrete
// implementation this repo carries, used only by tests.
package crypto

// PublicKeyP256 is an uncompressed P-256 point, X and Y as 32-byte
// big-endian coordinates (Bluetooth Core Spec Vol 3 Part H §2.3.5.6.1).
type PublicKeyP256 struct {
	X, Y [32]byte
}

// PrivateKeyP256 is a P-256 scalar.
type PrivateKeyP256 [32]byte

// IOCap is the 3-byte (IO capability, OOB flag, AuthReq) tuple f6 mixes in.
type IOCap [3]byte

// Provider is everything smp needs from a crypto/controller backend: ECDH
// key agreement and point validation, the legacy c1/s1 functions, the
// Secure Connections f4/f5/f6/g2/h6/h7 functions, AES-CMAC as their shared
// primitive, and LE-Rand. All methods are pure given their inputs except
// GenerateECDHKeyPair and Rand, which consult a random source.
type Provider interface {
	// GenerateECDHKeyPair returns a fresh P-256 keypair for one pairing.
	GenerateECDHKeyPair() (PrivateKeyP256, PublicKeyP256, error)

	// ValidatePoint reports whether pk lies on the P-256 curve (§4.3.4.1).
	ValidatePoint(pk PublicKeyP256) bool

	// ECDH computes the shared secret's X coordinate (DHKey).
	ECDH(priv PrivateKeyP256, peer PublicKeyP256) (dhKey [32]byte, err error)

	// AESCMAC is the shared MAC primitive f4/f5/f6/g2/h6/h7 are built from.
	AESCMAC(key [16]byte, message []byte) [16]byte

	// C1 is the legacy confirm-value function (Core Spec Vol 3 Part H §2.2.3).
	C1(k, r [16]byte, preq, pres [7]byte, iat byte, ia [6]byte, rat byte, ra [6]byte) [16]byte

	// S1 derives the legacy STK from the two temporary-key nonces.
	S1(k, r1, r2 [16]byte) [16]byte

	// F4 is the SC commitment function (§4.3.4.3).
	F4(u, v [32]byte, x [16]byte, z byte) [16]byte

	// F5 derives MacKey and LTK from the DHKey and both nonces (§4.3.5).
	F5(w [32]byte, n1, n2 [16]byte, a1, a2 [7]byte) (macKey, ltk [16]byte)

	// F6 computes the DHKey-check value (§4.3.5).
	F6(w [16]byte, n1, n2, r [16]byte, iocap IOCap, a1, a2 [7]byte) [16]byte

	// G2 computes the 6-digit numeric comparison value mod 1e6 (§4.3.5 scenario 2).
	G2(u, v [32]byte, x, y [16]byte) uint32

	// H6 derives a cross-transport key without H7 support (§4.3.6).
	H6(w [16]byte, keyID [4]byte) [16]byte

	// H7 derives a cross-transport key when both sides advertise H7_SUPPORT_BIT.
	H7(salt, w [16]byte) [16]byte

	// Rand fills n bytes of output from an LE-Rand-backed source (nonces,
	// nonces for passkey rounds, nonce generation for commitments).
	Rand(n int) ([]byte, error)
}
