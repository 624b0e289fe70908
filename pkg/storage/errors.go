package storage

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("not found")

	ErrCorruptRecord     = errors.New("stored record does not match requested index")
	ErrCorruptLedger     = errors.New("ledger files are inconsistent")
	ErrOutOfSequence     = errors.New("record index does not follow stored tip")
	ErrInvalidLedgerDir  = errors.New("ledger directory does not exist or is not a directory")
	ErrInvalidGenesis    = errors.New("genesis hash must be a 64 character hex digest")
	ErrInvalidBreakpiece = errors.New("breakpiece must be positive")

	ErrOpNotSupported = errors.New("operation not supported")
)
