package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tcfw/authchain/internal/api"
	"github.com/tcfw/authchain/internal/config"
	"github.com/tcfw/authchain/internal/node"
	"github.com/tcfw/authchain/internal/utils/logging"
	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/ledger"
)

var (
	ledgerCmd = &cobra.Command{
		Use:   "ledger",
		Short: "ledger commands",
	}

	ledger_lastCmd = &cobra.Command{
		Use:   "last",
		Short: "print the most recent block",
		RunE:  runLedgerLast,
	}

	ledger_getCmd = &cobra.Command{
		Use:   "get [index]",
		Short: "print the block at the given index",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerGet,
	}

	ledger_findCmd = &cobra.Command{
		Use:   "find [hash]",
		Short: "print the block with the given hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerFind,
	}

	ledger_exportCmd = &cobra.Command{
		Use:   "export",
		Short: "write the whole chain to stdout",
		RunE:  runLedgerExport,
	}

	ledger_importCmd = &cobra.Command{
		Use:   "import [records...]",
		Short: "replicate records into the daemon ledger, read from stdin when none are given",
		RunE:  runLedgerImport,
	}

	ledger_verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "verify the local ledger files without a running daemon",
		RunE:  runLedgerVerify,
	}
)

func client() (*api.Client, error) {
	c, err := api.NewClient()
	if err != nil {
		logging.WithError(err).Error("constructing client")
		return nil, err
	}
	return c, nil
}

func printBlock(resp *api.BlockResponse) {
	b, err := block.Parse(resp.Record)
	if err != nil {
		fmt.Println(resp.Record)
		return
	}

	fmt.Printf("index:     %d\n", b.Index)
	fmt.Printf("hash:      %s\n", b.Hash)
	fmt.Printf("previous:  %s\n", b.PreviousHash)
	fmt.Printf("data:      %s %s\n", b.Data[0], b.Data[1])
	fmt.Printf("timestamp: %s\n", b.Timestamp.Format(block.TimestampLayout))
	fmt.Printf("level:     %d\n", b.Level)
	fmt.Printf("nonce:     %d\n", b.Nonce)
	fmt.Printf("length:    %d\n", resp.Length)
}

func runLedgerLast(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.LastBlock(cmd.Context())
	if err != nil {
		return err
	}

	printBlock(resp)
	return nil
}

func runLedgerGet(cmd *cobra.Command, args []string) error {
	index, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return errors.Wrap(err, "parsing index")
	}

	c, err := client()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.BlockByIndex(cmd.Context(), index)
	if err != nil {
		return err
	}

	printBlock(resp)
	return nil
}

func runLedgerFind(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.BlockByHash(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printBlock(resp)
	return nil
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	defer c.Close()

	w := bufio.NewWriter(os.Stdout)
	if err := c.Chain(cmd.Context(), w); err != nil {
		return err
	}

	return w.Flush()
}

func runLedgerImport(cmd *cobra.Command, args []string) error {
	c, err := client()
	if err != nil {
		return err
	}
	defer c.Close()

	records := args
	if len(records) == 0 {
		records, err = readRecords(os.Stdin)
		if err != nil {
			return err
		}
	}

	for _, r := range records {
		resp, err := c.Replicate(cmd.Context(), r)
		if err != nil {
			return err
		}
		logging.Entry().WithField("length", resp.Length).Debug("replicated block")
	}

	fmt.Printf("imported %d blocks\n", len(records))
	return nil
}

func readRecords(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, block.RecordSize)

	var records []string
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			return records, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Errorf("trailing %d bytes after %d records", len(buf), len(records))
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading records")
		}

		records = append(records, string(buf))
	}
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	s, err := node.OpenStorage(ctx, cfg.Ledger(), logging.Entry())
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := ledger.Open(cfg.Ledger().Level, s)
	if err != nil {
		return err
	}

	if err := l.Verify(ctx); err != nil {
		return err
	}

	fmt.Printf("ledger ok: %d blocks across %d shards\n", l.Length(), s.Shards())
	return nil
}
