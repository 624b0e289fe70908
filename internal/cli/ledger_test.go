package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/authchain/pkg/block"
)

func TestReadRecords(t *testing.T) {
	a := strings.Repeat("a", block.RecordSize)
	b := strings.Repeat("b", block.RecordSize)

	records, err := readRecords(bytes.NewBufferString(a + b))
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, records)

	records, err = readRecords(&bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = readRecords(bytes.NewBufferString(a + "trailing"))
	assert.Error(t, err)
}
