package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio [account-id]",
	Short: "Show an account's holdings at current prices",
	Long: `Value every position at the current price and print the net worth.

Positions without a current quote are valued at their average cost and
marked with *. Without an argument the acting account is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPortfolio,
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	id := accountID
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" {
		if _, err := requireAccount(); err != nil {
			return err
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.engine.Valuate(context.Background(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account %s\n", v.Account.ID)
	if len(v.Holdings) > 0 {
		fmt.Fprintf(out, "  %-8s %14s %12s %12s %12s %9s\n", "SYMBOL", "QTY", "AVG", "PRICE", "VALUE", "P/L")
	}
	for _, h := range v.Holdings {
		mark := ""
		if !h.Live {
			mark = "*"
		}
		fmt.Fprintf(out, "  %-8s %14s %12s %12s %12s %9s%s\n",
			h.Symbol, h.Quantity, usdPrice(h.AvgPrice), usdPrice(h.Price), usd(h.Value), pct(h.PnLPct), mark)
	}
	fmt.Fprintf(out, "Cash:      %s\n", usd(v.Account.Cash))
	fmt.Fprintf(out, "Holdings:  %s\n", usd(v.HoldingsValue))
	fmt.Fprintf(out, "Net worth: %s (%s)\n", usd(v.NetWorth), pct(v.PnLPct))
	return nil
}
