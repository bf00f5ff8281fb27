// Package cryptoutil implements the RSA-2048 keypair, the device-format
// public key blob, and the textbook-RSA token signer used by the CNXN/AUTH
// handshake (Spec Section 4.3, Section 3 "AndroidPublicKey").
package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"math/big"
)

const keyBits = 2048

// Key wraps an RSA-2048 keypair, grounded on the teacher's P256KeyPair: a
// thin struct around the stdlib key type with package-level constructors
// instead of exported fields.
type Key struct {
	priv *rsa.PrivateKey
}

// GenerateKey creates a fresh RSA-2048 keypair.
func GenerateKey() (*Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	return &Key{priv: priv}, nil
}

// NewKeyFromRSA wraps an existing RSA-2048 private key, e.g. one loaded
// from disk by an external credential store (credential persistence itself
// is out of scope here; this is the seam it plugs into).
func NewKeyFromRSA(priv *rsa.PrivateKey) (*Key, error) {
	if priv.N.BitLen() != keyBits {
		return nil, ErrUnsupportedKeySize
	}
	return &Key{priv: priv}, nil
}

// Public returns the wrapped RSA public key.
func (k *Key) Public() *rsa.PublicKey {
	return &k.priv.PublicKey
}

const (
	androidPublicKeyWords = 64 // 2048 bits / 32
	androidPublicKeySize  = 4 + 4 + androidPublicKeyWords*4 + androidPublicKeyWords*4 + 4
)

// AndroidPublicKey is the fixed 524-byte RSA-2048 public key structure the
// device firmware reconstructs for Montgomery-domain verification
// (Spec Section 3).
type AndroidPublicKey struct {
	// LenWords is the modulus length in 32-bit words; always 64 for RSA-2048.
	LenWords uint32
	// N0Inv is -modulus^-1 mod 2^32.
	N0Inv uint32
	// N is the modulus, as 64 little-endian 32-bit words, least-significant
	// word first.
	N [androidPublicKeyWords]uint32
	// RR is R^2 mod N, where R = 2^2048, in the same word order as N.
	RR [androidPublicKeyWords]uint32
	// Exponent is the public exponent (e.g. 65537).
	Exponent uint32
}

// AndroidPublicKey derives the device-format public key blob from k
// (Spec Section 3). The Montgomery parameters (N0Inv, RR) are computed
// directly from the modulus; the device needs them because its verifier
// performs modular exponentiation in Montgomery form without a bignum
// library capable of an ordinary mod-reduce.
func (k *Key) AndroidPublicKey() AndroidPublicKey {
	n := k.priv.N

	two32 := new(big.Int).Lsh(big.NewInt(1), 32)
	nMod2to32 := new(big.Int).Mod(n, two32)
	inv := new(big.Int).ModInverse(nMod2to32, two32)
	// inv is guaranteed to exist: RSA moduli are odd, so n is a unit mod 2^32.
	n0inv := new(big.Int).Sub(two32, inv)
	n0inv.Mod(n0inv, two32)

	r := new(big.Int).Lsh(big.NewInt(1), androidPublicKeyWords*32)
	rr := new(big.Int).Mod(new(big.Int).Mul(r, r), n)

	pk := AndroidPublicKey{
		LenWords: androidPublicKeyWords,
		N0Inv:    uint32(n0inv.Uint64()),
		Exponent: uint32(k.priv.PublicKey.E),
	}
	bigIntToWords(n, pk.N[:])
	bigIntToWords(rr, pk.RR[:])
	return pk
}

// bigIntToWords writes x into words as little-endian 32-bit limbs,
// least-significant word first, truncating/zero-extending to len(words).
func bigIntToWords(x *big.Int, words []uint32) {
	mask := new(big.Int).SetUint64(0xFFFFFFFF)
	tmp := new(big.Int).Set(x)
	for i := range words {
		limb := new(big.Int).And(tmp, mask)
		words[i] = uint32(limb.Uint64())
		tmp.Rsh(tmp, 32)
	}
}

// wordsToBigInt is the inverse of bigIntToWords.
func wordsToBigInt(words []uint32) *big.Int {
	x := new(big.Int)
	for i := len(words) - 1; i >= 0; i-- {
		x.Lsh(x, 32)
		x.Or(x, new(big.Int).SetUint64(uint64(words[i])))
	}
	return x
}

// Encode serializes the blob into its 524-byte wire form.
func (pk AndroidPublicKey) Encode() []byte {
	buf := make([]byte, androidPublicKeySize)
	binary.LittleEndian.PutUint32(buf[0:4], pk.LenWords)
	binary.LittleEndian.PutUint32(buf[4:8], pk.N0Inv)
	off := 8
	for _, w := range pk.N {
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	for _, w := range pk.RR {
		binary.LittleEndian.PutUint32(buf[off:off+4], w)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], pk.Exponent)
	return buf
}

// DecodeAndroidPublicKey parses a 524-byte blob back into the modulus, the
// RR Montgomery constant, and the exponent. It exists to let round-trip
// tests verify AndroidPublicKey without a second, independent encoder; the
// client itself never needs to decode a blob it produced.
func DecodeAndroidPublicKey(buf []byte) (modulus, rr *big.Int, exponent uint32, err error) {
	if len(buf) != androidPublicKeySize {
		return nil, nil, 0, ErrShortBlob
	}
	lenWords := binary.LittleEndian.Uint32(buf[0:4])
	if lenWords != androidPublicKeyWords {
		return nil, nil, 0, fmt.Errorf("cryptoutil: unexpected len_words %d", lenWords)
	}
	nWords := make([]uint32, androidPublicKeyWords)
	off := 8
	for i := range nWords {
		nWords[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	rrWords := make([]uint32, androidPublicKeyWords)
	for i := range rrWords {
		rrWords[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	exponent = binary.LittleEndian.Uint32(buf[off : off+4])
	return wordsToBigInt(nWords), wordsToBigInt(rrWords), exponent, nil
}
