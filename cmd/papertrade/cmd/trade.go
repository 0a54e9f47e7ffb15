package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/spf13/cobra"
)

var buyCmd = &cobra.Command{
	Use:   "buy <symbol> <amount>",
	Short: "Buy an asset at the current price",
	Long: `Buy an asset at the current market price.

The amount is a quantity of the asset unless --notional is set, in which
case it is the cash to spend.

Examples:
  papertrade buy BTC 0.1 -a alice
  papertrade buy ETH 500 --notional -a alice`,
	Args: cobra.ExactArgs(2),
	RunE: runTrade(ledger.Buy),
}

var sellCmd = &cobra.Command{
	Use:   "sell <symbol> <amount>",
	Short: "Sell an asset at the current price",
	Long: `Sell an asset at the current market price.

The amount is a quantity of the asset unless --notional is set, in which
case it is the cash to raise.

Examples:
  papertrade sell BTC 0.05 -a alice
  papertrade sell ETH 250 --notional -a alice`,
	Args: cobra.ExactArgs(2),
	RunE: runTrade(ledger.Sell),
}

var (
	buyNotional  bool
	sellNotional bool
)

func init() {
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)

	buyCmd.Flags().BoolVar(&buyNotional, "notional", false, "amount is cash instead of units")
	sellCmd.Flags().BoolVar(&sellNotional, "notional", false, "amount is cash instead of units")
}

func runTrade(side ledger.Side) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		acct, err := requireAccount()
		if err != nil {
			return err
		}
		amount, err := market.ParseAmount(args[1])
		if err != nil {
			return err
		}
		sizing := ledger.Units
		if (side == ledger.Buy && buyNotional) || (side == ledger.Sell && sellNotional) {
			sizing = ledger.Notional
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		var res ledger.TradeResult
		if side == ledger.Buy {
			res, err = a.engine.ExecuteBuy(ctx, acct, args[0], amount, sizing)
		} else {
			res, err = a.engine.ExecuteSell(ctx, acct, args[0], amount, sizing)
		}
		if err != nil {
			return err
		}

		t := res.Transaction
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s %s %s @ %s = %s\n", t.Side, t.Quantity, t.Symbol, usdPrice(t.Price), usd(t.TotalValue))
		fmt.Fprintf(out, "  Cash: %s\n", usd(res.Cash))
		if res.Position != nil {
			fmt.Fprintf(out, "  Position: %s %s (avg %s)\n", res.Position.Quantity, res.Position.Symbol, usdPrice(res.Position.AvgPrice))
		} else {
			fmt.Fprintf(out, "  Position: %s closed\n", t.Symbol)
		}
		return nil
	}
}
