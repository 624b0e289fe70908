package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
)

func main() {
	n := flag.Int("n", 3, "number of sample blocks to mine after genesis")
	level := flag.Int("level", 2, "difficulty level")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	g, _ := json.MarshalIndent(block.Genesis(), "", "  ")
	fmt.Printf("Genesis:\n%s\n%s\n\n", g, block.GenesisRecord())

	s := storage.NewMemStore()
	prev := block.Genesis()

	for i := 1; i <= *n; i++ {
		data := block.Data{
			strings.Repeat(string(rune('a'+i%26)), block.TokenSize),
			strings.Repeat(string(rune('A'+i%26)), block.TokenSize),
		}

		b, err := block.Mine(ctx, prev.Index+1, prev.Hash, data, *level, time.Now())
		if err != nil {
			panic(err)
		}

		rec, err := b.Pack()
		if err != nil {
			panic(err)
		}

		if err := s.AddBlock(ctx, rec.Bytes()); err != nil {
			panic(err)
		}

		fmt.Fprintln(os.Stdout, rec)
		prev = b
	}
}
