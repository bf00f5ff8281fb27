package cryptoutil

import "math/big"

// TokenSize is the length of the AUTH challenge token the device sends.
const TokenSize = 20

// SignatureSize is the length of the signed response.
const SignatureSize = 256

// sha1DigestInfoPrefix is the ASN.1 DigestInfo prefix the device firmware's
// minimal verifier expects ahead of the raw SHA-1 hash:
//
//	SEQUENCE {
//	  SEQUENCE { OID sha1, NULL },
//	  OCTET STRING (20 bytes, appended separately)
//	}
//
// This is fixed and never built through crypto/rsa's PKCS1v15 helpers —
// the device's verifier is not a general PKCS#1 v1.5 implementation and
// will silently reject any other padding (Spec Section 4.3).
var sha1DigestInfoPrefix = [15]byte{
	0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e,
	0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14,
}

// SignToken signs a 20-byte AUTH challenge by textbook RSA (modular
// exponentiation with the private exponent, no padding scheme from
// crypto/rsa) over a fixed 256-byte block: 0x00 0x01, a run of 0xFF
// padding, a 0x00 separator, the DigestInfo prefix above, then the token
// itself (Spec Section 4.3).
func (k *Key) SignToken(token [TokenSize]byte) ([SignatureSize]byte, error) {
	var block [SignatureSize]byte
	block[0] = 0x00
	block[1] = 0x01

	padStart := 2
	padEnd := SignatureSize - 1 - len(sha1DigestInfoPrefix) - TokenSize
	for i := padStart; i < padEnd; i++ {
		block[i] = 0xFF
	}
	block[padEnd] = 0x00

	copy(block[padEnd+1:], sha1DigestInfoPrefix[:])
	copy(block[padEnd+1+len(sha1DigestInfoPrefix):], token[:])

	m := new(big.Int).SetBytes(block[:])
	c := new(big.Int).Exp(m, k.priv.D, k.priv.N)

	var sig [SignatureSize]byte
	c.FillBytes(sig[:])
	return sig, nil
}
