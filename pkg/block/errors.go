package block

import "github.com/pkg/errors"

// InvalidError is the class of errors returned for records and payloads which
// must be rejected. Every InvalidError matches ErrInvalidBlock with errors.Is.
type InvalidError string

func (e InvalidError) Error() string {
	return string(e)
}

func (e InvalidError) Is(target error) bool {
	return target == ErrInvalidBlock
}

// validation errors - keep in alphabetic order
var (
	ErrHashMismatch            = InvalidError("hash does not match block contents")
	ErrIndexOutOfSequence      = InvalidError("index does not follow previous block")
	ErrInsufficientWork        = InvalidError("hash does not meet difficulty level")
	ErrInvalidBlock            = InvalidError("invalid block")
	ErrInvalidData             = InvalidError("data must be two printable tokens of 43 characters")
	ErrInvalidField            = InvalidError("malformed record field")
	ErrInvalidLevel            = InvalidError("difficulty level out of range")
	ErrInvalidRecordSize       = InvalidError("record size is not 258 bytes")
	ErrLevelMismatch           = InvalidError("difficulty level does not match ledger")
	ErrPreviousHashMismatch    = InvalidError("previous hash does not match previous block")
	ErrTimestampBeforePrevious = InvalidError("timestamp precedes previous block")
)

var (
	ErrNonceExhausted = errors.New("nonce space exhausted without meeting difficulty")
	ErrChainFull      = errors.New("index space exhausted")
)
