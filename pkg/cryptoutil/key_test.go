package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"
)

func testKey(t *testing.T) *Key {
	t.Helper()
	k, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

func TestAndroidPublicKeyEncodeSize(t *testing.T) {
	k := testKey(t)
	blob := k.AndroidPublicKey().Encode()
	if len(blob) != 524 {
		t.Fatalf("len(blob) = %d, want 524", len(blob))
	}
}

func TestAndroidPublicKeyN0Inv(t *testing.T) {
	k := testKey(t)
	pk := k.AndroidPublicKey()

	// Montgomery invariant: N * N0Inv ≡ -1 (mod 2^32).
	two32 := new(big.Int).Lsh(big.NewInt(1), 32)
	product := new(big.Int).Mul(k.priv.N, big.NewInt(int64(pk.N0Inv)))
	product.Mod(product, two32)
	want := new(big.Int).Sub(two32, big.NewInt(1))
	if product.Cmp(want) != 0 {
		t.Fatalf("N*N0Inv mod 2^32 = %v, want %v", product, want)
	}
}

func TestAndroidPublicKeyRoundTrip(t *testing.T) {
	k := testKey(t)
	pk := k.AndroidPublicKey()
	blob := pk.Encode()

	n, rr, exponent, err := DecodeAndroidPublicKey(blob)
	if err != nil {
		t.Fatalf("DecodeAndroidPublicKey: %v", err)
	}
	if n.Cmp(k.priv.N) != 0 {
		t.Fatalf("decoded modulus mismatch")
	}
	if exponent != uint32(k.priv.PublicKey.E) {
		t.Fatalf("decoded exponent = %d, want %d", exponent, k.priv.PublicKey.E)
	}

	r := new(big.Int).Lsh(big.NewInt(1), androidPublicKeyWords*32)
	wantRR := new(big.Int).Mod(new(big.Int).Mul(r, r), k.priv.N)
	if rr.Cmp(wantRR) != 0 {
		t.Fatalf("decoded RR mismatch")
	}
}

func TestDecodeAndroidPublicKeyShortBlob(t *testing.T) {
	if _, _, _, err := DecodeAndroidPublicKey([]byte{1, 2, 3}); err != ErrShortBlob {
		t.Fatalf("err = %v, want ErrShortBlob", err)
	}
}

func TestNewKeyFromRSARejectsWrongSize(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := NewKeyFromRSA(priv); err != ErrUnsupportedKeySize {
		t.Fatalf("err = %v, want ErrUnsupportedKeySize", err)
	}
}

func TestSignTokenVerifiesAgainstDigestInfoBlock(t *testing.T) {
	k := testKey(t)
	var token [TokenSize]byte
	for i := range token {
		token[i] = byte(i + 1)
	}

	sig, err := k.SignToken(token)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	// Recover the signed block via the public exponent and check it
	// matches the fixed-prefix layout the device verifier expects.
	c := new(big.Int).SetBytes(sig[:])
	m := new(big.Int).Exp(c, big.NewInt(int64(k.priv.PublicKey.E)), k.priv.N)
	var block [SignatureSize]byte
	m.FillBytes(block[:])

	if block[0] != 0x00 || block[1] != 0x01 {
		t.Fatalf("block header = %x %x, want 00 01", block[0], block[1])
	}
	padEnd := SignatureSize - 1 - len(sha1DigestInfoPrefix) - TokenSize
	for i := 2; i < padEnd; i++ {
		if block[i] != 0xFF {
			t.Fatalf("padding byte %d = %x, want ff", i, block[i])
		}
	}
	if block[padEnd] != 0x00 {
		t.Fatalf("padding terminator = %x, want 00", block[padEnd])
	}
	gotDigestInfo := block[padEnd+1 : padEnd+1+len(sha1DigestInfoPrefix)]
	for i, b := range sha1DigestInfoPrefix {
		if gotDigestInfo[i] != b {
			t.Fatalf("digest info byte %d = %x, want %x", i, gotDigestInfo[i], b)
		}
	}
	gotToken := block[padEnd+1+len(sha1DigestInfoPrefix):]
	if *(*[TokenSize]byte)(gotToken) != token {
		t.Fatalf("recovered token mismatch")
	}
}
