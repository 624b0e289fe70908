package block

import (
	"fmt"
	"time"
)

const (
	// GenesisHash is the well known hash every ledger is anchored to
	GenesisHash = "00f58b7038feb67f4420d93bf87f6347ccacfe7d36bc0f75532d3166c04dd798"

	genesisPreviousHash = "816534932c2b7154836da6afc367695e6337db8a921823784c14378abed4f7d7"
	genesisLevel        = 2
	genesisNonce        = 827
)

var (
	genesisBlock = Block{
		Index:        0,
		PreviousHash: genesisPreviousHash,
		Data: Data{
			fmt.Sprintf("%-*s", TokenSize, "AuthChain Genesis Block"),
			fmt.Sprintf("%-*s", TokenSize, "signaling ledger anchor"),
		},
		Timestamp: time.Unix(0, 0).UTC(),
		Level:     genesisLevel,
		Nonce:     genesisNonce,
		Hash:      GenesisHash,
	}

	genesisRecord Record
)

func init() {
	var err error

	genesisRecord, err = genesisBlock.Pack()
	if err != nil {
		panic(fmt.Sprintf("packing genesis block: %s", err))
	}
}

// Genesis returns a copy of the sentinel block preceding index 1.
// It is never stored and its hash is a constant, not a digest of its fields.
func Genesis() *Block {
	g := genesisBlock
	return &g
}

// GenesisRecord returns the serialised genesis block
func GenesisRecord() Record {
	return genesisRecord
}

// IsGenesis reports whether b is the genesis sentinel
func IsGenesis(b *Block) bool {
	return b != nil && b.Index == 0 && b.Hash == GenesisHash
}
