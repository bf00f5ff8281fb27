package cryptoutil

import "errors"

// Key/signer errors (Spec Section 4.3, Section 3 AndroidPublicKey).
var (
	// ErrUnsupportedKeySize is returned when a *rsa.PrivateKey other than
	// 2048 bits is handed to NewKeyFromRSA; the AndroidPublicKey layout is
	// fixed-width and only defined for RSA-2048.
	ErrUnsupportedKeySize = errors.New("cryptoutil: only RSA-2048 keys are supported")

	// ErrShortBlob is returned by DecodeAndroidPublicKey when the input is
	// not exactly androidPublicKeySize bytes.
	ErrShortBlob = errors.New("cryptoutil: android public key blob has wrong length")
)
