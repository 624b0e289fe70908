package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcfw/authchain/pkg/digest"
)

func TestBloom(t *testing.T) {
	h1 := digest.Sum([]byte{1})
	h2 := digest.Sum([]byte{2})

	b := NewHashBloom(10)
	AddHash(b, h1)

	assert.True(t, MayContainHash(b, h1))
	assert.False(t, MayContainHash(b, h2))
}
