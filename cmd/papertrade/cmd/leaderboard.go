package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank accounts by net worth",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

var leaderboardLimit int

func init() {
	rootCmd.AddCommand(leaderboardCmd)

	leaderboardCmd.Flags().IntVarP(&leaderboardLimit, "limit", "l", 10, "number of accounts to show (0 = all)")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	board, err := a.engine.Leaderboard(context.Background(), leaderboardLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(board) == 0 {
		fmt.Fprintln(out, "No accounts")
		return nil
	}
	fmt.Fprintf(out, "%4s  %-16s %14s %9s %5s\n", "RANK", "ACCOUNT", "NET WORTH", "P/L", "POS")
	for _, s := range board {
		fmt.Fprintf(out, "%4d  %-16s %14s %9s %5d\n", s.Rank, s.AccountID, usd(s.NetWorth), pct(s.PnLPct), s.Positions)
	}
	return nil
}
