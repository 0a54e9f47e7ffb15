package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/spf13/cobra"
)

var copyCmd = &cobra.Command{
	Use:   "copy <source-account>",
	Short: "Copy another account's holdings",
	Long: `Buy the same quantity of every asset another account holds.

By default the copied positions are added to the acting account's own.
With --replace every existing position is first sold at its average cost.
With --preview nothing is traded; the cost and affordability are printed.

Examples:
  papertrade copy bob -a alice --preview
  papertrade copy bob -a alice --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runCopy,
}

var (
	copyReplace bool
	copyPreview bool
)

func init() {
	rootCmd.AddCommand(copyCmd)

	copyCmd.Flags().BoolVar(&copyReplace, "replace", false, "liquidate existing positions first")
	copyCmd.Flags().BoolVar(&copyPreview, "preview", false, "show the cost without trading")
}

func runCopy(cmd *cobra.Command, args []string) error {
	acct, err := requireAccount()
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()
	source := args[0]

	if copyPreview {
		p, err := a.engine.PreviewCopyTrade(ctx, acct, source)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Copy %s into %s\n", source, acct)
		for _, o := range p.Orders {
			note := ""
			if !o.Live {
				note = " (avg cost)"
			}
			fmt.Fprintf(out, "  %-8s %14s @ %12s = %12s%s\n", o.Symbol, o.Quantity, usdPrice(o.Price), usd(o.Cost), note)
		}
		fmt.Fprintf(out, "Total: %s  Cash: %s  Liquidation: %s\n", usd(p.TotalCost), usd(p.Cash), usd(p.LiquidationValue))
		fmt.Fprintf(out, "Merge: %s  Replace: %s\n", yesNo(p.CanMerge), yesNo(p.CanReplace))
		return nil
	}

	mode := ledger.Merge
	if copyReplace {
		mode = ledger.Replace
	}
	res, err := a.engine.ExecuteCopyTrade(ctx, acct, source, mode)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Copied %s into %s (%s)\n", source, acct, res.Mode)
	for _, t := range res.Liquidated {
		fmt.Fprintf(out, "  SELL %s %s @ %s\n", t.Quantity, t.Symbol, usdPrice(t.Price))
	}
	for _, t := range res.Bought {
		fmt.Fprintf(out, "  BUY  %s %s @ %s\n", t.Quantity, t.Symbol, usdPrice(t.Price))
	}
	fmt.Fprintf(out, "  Cost: %s  Cash: %s\n", usd(res.TotalCost), usd(res.Cash))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
