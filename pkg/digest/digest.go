// Package digest computes the ledger hash used to link and seal blocks.
//
// Every node must produce byte-identical digests for byte-identical input, so the
// hash function is fixed to SHA2-256 and rendered as 64 lowercase hex characters.
package digest

import (
	"encoding/hex"

	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

const (
	// Size is the length of a rendered digest in characters
	Size = 64
)

// Sum returns the lowercase hex SHA2-256 digest of d
func Sum(d []byte) string {
	mh, err := multihash.Sum(d, multihash.SHA2_256, multihash.DefaultLengths[multihash.SHA2_256])
	if err != nil {
		//sha2-256 is always registered
		panic(errors.Wrap(err, "summing sha2-256"))
	}

	dec, err := multihash.Decode(mh)
	if err != nil {
		panic(errors.Wrap(err, "decoding sha2-256 multihash"))
	}

	return hex.EncodeToString(dec.Digest)
}

// HasLeadingZeros reports whether the first n characters of the hex digest are all '0'
func HasLeadingZeros(hash string, n int) bool {
	if n < 0 || n > len(hash) {
		return false
	}

	for i := 0; i < n; i++ {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}

// IsValid reports whether s looks like a rendered digest
func IsValid(s string) bool {
	if len(s) != Size {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
