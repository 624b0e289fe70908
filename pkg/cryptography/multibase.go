package cryptography

import (
	"crypto/rand"

	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"
)

const (
	fingerprintSize = 16
)

func DecodeMultibase(mb string) ([]byte, error) {
	_, d, err := multibase.Decode(mb)
	return d, err
}

func EncodeMultibase(raw []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, raw)
}

// NewFingerprint returns 16 random bytes, multibase encoded
func NewFingerprint() (string, error) {
	b := make([]byte, fingerprintSize)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "reading random fingerprint")
	}

	return EncodeMultibase(b)
}
