// Package smptest is the one concrete crypto.Provider this repo carries
// (§6: "consumed, not implemented" — except for tests, which need a real
// implementation to drive against). It implements the Bluetooth Core Spec
// Vol 3 Part H legacy (c1/s1) and Secure Connections (f4/f5/f6/g2/h6/h7)
// functions on top of AES-CMAC (RFC 4493) and P-256 ECDH, built from
// stdlib crypto/aes, crypto/elliptic, and crypto/rand — grounded on
// kr/krypto.go's pure-function wrapper shape, generalized from RSA/Ed25519
// operations to the BLE key-derivation suite.
package smptest

import (
	"crypto/aes"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"github.com/keepQASSA/system-bt/crypto"
)

// Provider is a stateless implementation of crypto.Provider. The zero value
// is ready to use.
type Provider struct{}

var curve = elliptic.P256()

func (Provider) GenerateECDHKeyPair() (crypto.PrivateKeyP256, crypto.PublicKeyP256, error) {
	priv, x, y, err := elliptic.GenerateKey(curve, rand.Reader)
	if err != nil {
		return crypto.PrivateKeyP256{}, crypto.PublicKeyP256{}, err
	}
	var sk crypto.PrivateKeyP256
	copy(sk[:], leftPad(priv, 32))
	return sk, pointToPub(x, y), nil
}

func (Provider) ValidatePoint(pk crypto.PublicKeyP256) bool {
	x := new(big.Int).SetBytes(pk.X[:])
	y := new(big.Int).SetBytes(pk.Y[:])
	return curve.IsOnCurve(x, y)
}

func (Provider) ECDH(priv crypto.PrivateKeyP256, peer crypto.PublicKeyP256) ([32]byte, error) {
	x := new(big.Int).SetBytes(peer.X[:])
	y := new(big.Int).SetBytes(peer.Y[:])
	sx, _ := curve.ScalarMult(x, y, priv[:])
	var out [32]byte
	copy(out[:], leftPad(sx.Bytes(), 32))
	return out, nil
}

// AESCMAC implements RFC 4493 AES-128-CMAC, the shared primitive every
// f-function below is built from.
func (Provider) AESCMAC(key [16]byte, message []byte) [16]byte {
	return cmac(key, message)
}

// C1 implements the legacy confirm-value function (Core Spec Vol 3 Part H
// §2.2.3): c1(k, r, preq, pres, iat, ia, rat, ra).
func (p Provider) C1(k, r [16]byte, preq, pres [7]byte, iat byte, ia [6]byte, rat byte, ra [6]byte) [16]byte {
	var p1, p2 [16]byte
	copy(p1[0:7], reverse(pres[:]))
	copy(p1[7:14], reverse(preq[:]))
	p1[14] = rat
	p1[15] = iat

	copy(p2[0:6], reverse(ra[:]))
	copy(p2[6:12], reverse(ia[:]))

	var rXorP1 [16]byte
	for i := range r {
		rXorP1[i] = r[i] ^ p1[i]
	}
	e1 := aesEncrypt(k, rXorP1)

	var e1XorP2 [16]byte
	for i := range e1 {
		e1XorP2[i] = e1[i] ^ p2[i]
	}
	return aesEncrypt(k, e1XorP2)
}

// S1 derives the legacy STK: s1(k, r1, r2) = AES-128(k, r1[0:8] || r2[0:8]).
func (p Provider) S1(k, r1, r2 [16]byte) [16]byte {
	var in [16]byte
	copy(in[0:8], r2[0:8])
	copy(in[8:16], r1[0:8])
	return aesEncrypt(k, in)
}

// F4 implements the SC commitment function: f4(U, V, X, Z) =
// AES-CMAC_X(U || V || Z).
func (p Provider) F4(u, v [32]byte, x [16]byte, z byte) [16]byte {
	msg := make([]byte, 0, 65)
	msg = append(msg, reverse(u[:])...)
	msg = append(msg, reverse(v[:])...)
	msg = append(msg, z)
	return cmac(x, msg)
}

// F5 derives MacKey || LTK: f5 salts and counters its two CMAC outputs over
// the DHKey-derived T key (Core Spec Vol 3 Part H §2.2.7).
func (p Provider) F5(w [32]byte, n1, n2 [16]byte, a1, a2 [7]byte) (macKey, ltk [16]byte) {
	salt := [16]byte{0x6C, 0x88, 0x83, 0x91, 0xAA, 0xF5, 0xA5, 0x38, 0x60, 0x37, 0x0B, 0xDB, 0x5A, 0x60, 0x83, 0xBE}
	t := cmac(salt, reverse(w[:]))

	keyID := []byte{0x62, 0x74, 0x6C, 0x65} // "btle"
	msg := func(counter byte) []byte {
		out := make([]byte, 0, 1+4+16+16+7+7+2)
		out = append(out, counter)
		out = append(out, keyID...)
		out = append(out, reverse(n1[:])...)
		out = append(out, reverse(n2[:])...)
		out = append(out, reverse(a1[:])...)
		out = append(out, reverse(a2[:])...)
		out = append(out, 0x00, 0x01) // length = 256 bits, little-endian
		return out
	}
	macKey = cmac(t, msg(0))
	ltk = cmac(t, msg(1))
	return
}

// F6 computes the DHKey-check value: f6(W, N1, N2, R, IOcap, A1, A2) =
// AES-CMAC_W(N1 || N2 || R || IOcap || A1 || A2).
func (p Provider) F6(w [16]byte, n1, n2, r [16]byte, iocap crypto.IOCap, a1, a2 [7]byte) [16]byte {
	msg := make([]byte, 0, 16+16+16+3+7+7)
	msg = append(msg, reverse(n1[:])...)
	msg = append(msg, reverse(n2[:])...)
	msg = append(msg, reverse(r[:])...)
	msg = append(msg, reverse(iocap[:])...)
	msg = append(msg, reverse(a1[:])...)
	msg = append(msg, reverse(a2[:])...)
	return cmac(w, msg)
}

// G2 computes the numeric comparison value: g2(U, V, X, Y) = the low 32
// bits of AES-CMAC_X(U || V || Y), as an unsigned integer (caller reduces
// mod 10^6).
func (p Provider) G2(u, v [32]byte, x, y [16]byte) uint32 {
	msg := make([]byte, 0, 32+32+16)
	msg = append(msg, reverse(u[:])...)
	msg = append(msg, reverse(v[:])...)
	msg = append(msg, reverse(y[:])...)
	out := cmac(x, msg)
	return uint32(out[12])<<24 | uint32(out[13])<<16 | uint32(out[14])<<8 | uint32(out[15])
}

// H6 derives a cross-transport key: h6(W, keyID) = AES-CMAC_W(keyID).
func (p Provider) H6(w [16]byte, keyID [4]byte) [16]byte {
	return cmac(w, keyID[:])
}

// H7 derives a cross-transport key with H7 support: h7(salt, W) =
// AES-CMAC_salt(W).
func (p Provider) H7(salt, w [16]byte) [16]byte {
	return cmac(salt, w[:])
}

func (Provider) Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func pointToPub(x, y *big.Int) crypto.PublicKeyP256 {
	var pub crypto.PublicKeyP256
	copy(pub.X[:], leftPad(x.Bytes(), 32))
	copy(pub.Y[:], leftPad(y.Bytes(), 32))
	return pub
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func aesEncrypt(key, block [16]byte) [16]byte {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err) // key is always 16 bytes; NewCipher only fails on bad key length
	}
	var out [16]byte
	c.Encrypt(out[:], block[:])
	return out
}

// cmac implements RFC 4493 AES-128-CMAC.
func cmac(key [16]byte, message []byte) [16]byte {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}

	var zero, l [16]byte
	c.Encrypt(l[:], zero[:])
	k1 := cmacShiftXor(l)
	k2 := cmacShiftXor(k1)

	n := (len(message) + 15) / 16
	var lastBlockComplete bool
	if n == 0 {
		n = 1
	} else {
		lastBlockComplete = len(message)%16 == 0
	}

	var mLast [16]byte
	if lastBlockComplete {
		copy(mLast[:], message[(n-1)*16:])
		for i := range mLast {
			mLast[i] ^= k1[i]
		}
	} else {
		remainder := message[(n-1)*16:]
		copy(mLast[:], remainder)
		mLast[len(remainder)] = 0x80
		for i := range mLast {
			mLast[i] ^= k2[i]
		}
	}

	var x [16]byte
	for i := 0; i < n-1; i++ {
		var block [16]byte
		copy(block[:], message[i*16:(i+1)*16])
		for j := range x {
			x[j] ^= block[j]
		}
		var y [16]byte
		c.Encrypt(y[:], x[:])
		x = y
	}
	for j := range x {
		x[j] ^= mLast[j]
	}
	var out [16]byte
	c.Encrypt(out[:], x[:])
	return out
}

func cmacShiftXor(in [16]byte) [16]byte {
	var out [16]byte
	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	if carry != 0 {
		out[15] ^= 0x87
	}
	return out
}
