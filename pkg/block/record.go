package block

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tcfw/authchain/pkg/digest"
)

// Record is a block serialised to its fixed width form
type Record [RecordSize]byte

func (r Record) String() string {
	return string(r[:])
}

// Bytes returns a copy of the record
func (r Record) Bytes() []byte {
	b := make([]byte, RecordSize)
	copy(b, r[:])
	return b
}

// Pack serialises the block, refusing any field which would not fit its width
func (b *Block) Pack() (Record, error) {
	r := Record{}

	if b.Index > MaxIndex {
		return r, errors.Wrap(ErrInvalidField, "index")
	}
	if !digest.IsValid(b.PreviousHash) {
		return r, errors.Wrap(ErrInvalidField, "previous hash")
	}
	if err := b.Data.Valid(); err != nil {
		return r, err
	}
	ts := formatTimestamp(b.Timestamp)
	if len(ts) != TimestampSize {
		return r, errors.Wrap(ErrInvalidField, "timestamp")
	}
	if b.Level < 0 || b.Level > MaxLevel {
		return r, ErrInvalidLevel
	}
	if b.Nonce > MaxNonce {
		return r, errors.Wrap(ErrInvalidField, "nonce")
	}
	if !digest.IsValid(b.Hash) {
		return r, errors.Wrap(ErrInvalidField, "hash")
	}

	copy(r[indexOffset:], formatIndex(b.Index))
	copy(r[previousHashOffset:], b.PreviousHash)
	copy(r[data0Offset:], b.Data[0])
	copy(r[data1Offset:], b.Data[1])
	copy(r[timestampOffset:], ts)
	copy(r[levelOffset:], formatLevel(b.Level))
	copy(r[nonceOffset:], formatNonce(b.Nonce))
	copy(r[hashOffset:], b.Hash)

	return r, nil
}

// Unpack decodes a serialised block. The record must be exactly RecordSize
// bytes; no field is read from a record of any other length.
func Unpack(raw []byte) (*Block, error) {
	if len(raw) != RecordSize {
		return nil, ErrInvalidRecordSize
	}

	b := &Block{}

	index, err := parseDigits(raw[indexOffset:previousHashOffset])
	if err != nil {
		return nil, errors.Wrap(err, "index")
	}
	b.Index = index

	b.PreviousHash = string(raw[previousHashOffset:data0Offset])
	if !digest.IsValid(b.PreviousHash) {
		return nil, errors.Wrap(ErrInvalidField, "previous hash")
	}

	b.Data = Data{
		string(raw[data0Offset:data1Offset]),
		string(raw[data1Offset:timestampOffset]),
	}
	if err := b.Data.Valid(); err != nil {
		return nil, err
	}

	ts := string(raw[timestampOffset:levelOffset])
	b.Timestamp, err = time.Parse(TimestampLayout, ts)
	if err != nil || formatTimestamp(b.Timestamp) != ts {
		return nil, errors.Wrap(ErrInvalidField, "timestamp")
	}

	level, err := parseDigits(raw[levelOffset:nonceOffset])
	if err != nil {
		return nil, errors.Wrap(err, "level")
	}
	if level > MaxLevel {
		return nil, ErrInvalidLevel
	}
	b.Level = int(level)

	nonce, err := parseDigits(raw[nonceOffset:hashOffset])
	if err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	b.Nonce = uint32(nonce)

	b.Hash = string(raw[hashOffset:RecordSize])
	if !digest.IsValid(b.Hash) {
		return nil, errors.Wrap(ErrInvalidField, "hash")
	}

	return b, nil
}

// Parse decodes a serialised block held in a string
func Parse(raw string) (*Block, error) {
	return Unpack([]byte(raw))
}

// IndexOf reads only the index field of a serialised block
func IndexOf(raw []byte) (uint64, error) {
	if len(raw) != RecordSize {
		return 0, ErrInvalidRecordSize
	}

	return parseDigits(raw[indexOffset:previousHashOffset])
}

// HashOf reads only the hash field of a serialised block
func HashOf(raw []byte) (string, error) {
	if len(raw) != RecordSize {
		return "", ErrInvalidRecordSize
	}

	return string(raw[hashOffset:RecordSize]), nil
}

// parseDigits accepts only fixed width unsigned decimal fields
func parseDigits(field []byte) (uint64, error) {
	if len(field) == 0 {
		return 0, ErrInvalidField
	}

	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, ErrInvalidField
		}
	}

	v, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		return 0, ErrInvalidField
	}

	return v, nil
}
