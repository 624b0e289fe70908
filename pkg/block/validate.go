package block

import "github.com/tcfw/authchain/pkg/digest"

// Validate decodes raw and checks it may follow prev in a ledger of the given level.
//
// The hash is recomputed from the decoded fields and the difficulty target is
// checked on the hash independently, so a record whose hash matches its contents
// but was never mined is still rejected.
func Validate(raw []byte, prev *Block, level int) (*Block, error) {
	b, err := Unpack(raw)
	if err != nil {
		return nil, err
	}

	if err := ValidSequence(prev, b); err != nil {
		return nil, err
	}

	if err := ValidLinkage(prev, b); err != nil {
		return nil, err
	}

	if b.Level != level {
		return nil, ErrLevelMismatch
	}

	if err := ValidTimestamp(prev, b); err != nil {
		return nil, err
	}

	if b.Digest() != b.Hash {
		return nil, ErrHashMismatch
	}

	if err := ValidProofOfWork(b); err != nil {
		return nil, err
	}

	return b, nil
}

// ValidSequence checks the block index directly follows the previous block
func ValidSequence(prev, b *Block) error {
	if b.Index != prev.Index+1 {
		return ErrIndexOutOfSequence
	}

	return nil
}

// ValidLinkage checks the block references the hash of the previous block
func ValidLinkage(prev, b *Block) error {
	if b.PreviousHash != prev.Hash {
		return ErrPreviousHashMismatch
	}

	return nil
}

// ValidTimestamp checks timestamps never decrease along the chain
func ValidTimestamp(prev, b *Block) error {
	if b.Timestamp.Before(prev.Timestamp) {
		return ErrTimestampBeforePrevious
	}

	return nil
}

// ValidProofOfWork checks the hash carries the leading zeros its level requires
func ValidProofOfWork(b *Block) error {
	if b.Level < 0 || b.Level > MaxLevel {
		return ErrInvalidLevel
	}

	if !digest.HasLeadingZeros(b.Hash, b.Level) {
		return ErrInsufficientWork
	}

	return nil
}
