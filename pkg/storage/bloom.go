package storage

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const (
	falsePositive = 0.01
)

// NewHashBloom creates a filter sized for n block hashes
func NewHashBloom(n uint) *bloom.BloomFilter {
	if n < DefaultBreakpiece {
		n = DefaultBreakpiece
	}

	return bloom.NewWithEstimates(n, falsePositive)
}

// AddHash adds a rendered block hash to the filter
func AddHash(b *bloom.BloomFilter, hash string) {
	b.AddString(hash)
}

// MayContainHash reports false only if the hash was never added
func MayContainHash(b *bloom.BloomFilter, hash string) bool {
	return b.TestString(hash)
}
