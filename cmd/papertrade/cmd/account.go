package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage paper-trading accounts",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open <account-id>",
	Short: "Open an account with the starting balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountOpen,
}

var accountName string

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd)

	accountOpenCmd.Flags().StringVarP(&accountName, "name", "n", "", "display name")
}

func runAccountOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.engine.OpenAccount(context.Background(), args[0], accountName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Opened account %s with %s\n", acct.ID, usd(acct.Cash))
	return nil
}
