package ledger

import (
	"github.com/pkg/errors"

	"github.com/tcfw/authchain/pkg/block"
)

var (
	ErrInvalidPayload = block.InvalidError("payload is neither a token pair nor a serialised block")

	ErrLevelMismatch = errors.New("stored tip was mined at a different level")
	ErrInvalidLevel  = errors.New("level out of range")
	ErrCorruptTip    = errors.New("stored tip cannot be decoded")
)
