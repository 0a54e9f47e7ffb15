package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/journal"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List an account's transactions, newest first",
	Long: `List the acting account's transactions, newest first.

Examples:
  papertrade history -a alice --limit 20
  papertrade history -a alice --csv alice.csv
  papertrade history -a alice --csv -`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyLimit int
	historyCSV   string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0, "maximum transactions to show (0 = all)")
	historyCmd.Flags().StringVar(&historyCSV, "csv", "", "write the transactions to this CSV file (- for stdout)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	acct, err := requireAccount()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	txs, err := a.engine.History(context.Background(), acct, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyCSV == "-" {
		return journal.WriteCSV(out, txs)
	}
	if historyCSV != "" {
		j, err := journal.NewCSV(historyCSV)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		for _, t := range txs {
			if err := j.RecordTransaction(t); err != nil {
				j.Close()
				return fmt.Errorf("write csv: %w", err)
			}
		}
		if err := j.Close(); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %d transactions to %s\n", len(txs), historyCSV)
		return nil
	}

	if len(txs) == 0 {
		fmt.Fprintf(out, "No transactions for %s\n", acct)
		return nil
	}
	for _, t := range txs {
		fmt.Fprintf(out, "%s  %-4s %-8s %14s @ %12s = %12s\n",
			t.Time.Local().Format("2006-01-02 15:04:05"), t.Side, t.Symbol, t.Quantity, usdPrice(t.Price), usd(t.TotalValue))
	}
	return nil
}
