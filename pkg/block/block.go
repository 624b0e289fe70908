// Package block defines a single ledger entry, its fixed width record encoding
// and the proof of work used to seal it.
package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tcfw/authchain/pkg/digest"
)

// byte sizes for the record fields
const (
	IndexSize        = 13          // zero padded decimal block number
	PreviousHashSize = digest.Size // hex digest of the previous block
	TokenSize        = 43          // one opaque data token
	TimestampSize    = 24          // ISO-8601 UTC with milliseconds
	LevelSize        = 2           // required leading hex zeros
	NonceSize        = 5           // zero padded decimal search variable
	HashSize         = digest.Size // hex digest of this block
)

// offsets of the fields
const (
	indexOffset        = 0
	previousHashOffset = indexOffset + IndexSize
	data0Offset        = previousHashOffset + PreviousHashSize
	data1Offset        = data0Offset + TokenSize
	timestampOffset    = data1Offset + TokenSize
	levelOffset        = timestampOffset + TimestampSize
	nonceOffset        = levelOffset + LevelSize
	hashOffset         = nonceOffset + NonceSize

	// RecordSize is the total bytes in one serialised block
	RecordSize = hashOffset + HashSize
)

// limits imposed by the field widths
const (
	MaxIndex = 9999999999999
	MaxNonce = 99999
	MaxLevel = digest.Size
)

// TimestampLayout is the layout of the timestamp field
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Data is the opaque two token payload carried by a block
type Data [2]string

// Valid checks both tokens are exactly TokenSize printable ASCII characters
func (d Data) Valid() error {
	for _, tok := range d {
		if len(tok) != TokenSize || !isPrintable(tok) {
			return ErrInvalidData
		}
	}

	return nil
}

// canonical renders the data pair as a JSON array without HTML escaping
func (d Data) canonical() []byte {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	//encoding a string array cannot fail
	_ = enc.Encode([]string{d[0], d[1]})

	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// Block is one hash linked ledger entry
type Block struct {
	Index        uint64    `json:"index,string"`
	PreviousHash string    `json:"previousHash"`
	Data         Data      `json:"data"`
	Timestamp    time.Time `json:"timestamp"`
	Level        int       `json:"level"`
	Nonce        uint32    `json:"nonce"`
	Hash         string    `json:"hash"`
}

// Digest recomputes the hash of the block from its contents
func (b *Block) Digest() string {
	return digest.Sum(append(b.hashPrefix(), formatNonce(b.Nonce)...))
}

// hashPrefix is the hash input up to but excluding the nonce
func (b *Block) hashPrefix() []byte {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, formatIndex(b.Index)...)
	buf = append(buf, b.PreviousHash...)
	buf = append(buf, b.Data.canonical()...)
	buf = append(buf, formatTimestamp(b.Timestamp)...)
	return buf
}

func formatIndex(i uint64) string {
	return fmt.Sprintf("%0*d", IndexSize, i)
}

func formatLevel(l int) string {
	return fmt.Sprintf("%0*d", LevelSize, l)
}

func formatNonce(n uint32) string {
	return fmt.Sprintf("%0*d", NonceSize, n)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// normaliseTime drops everything the timestamp field cannot represent
func normaliseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}

	return true
}
