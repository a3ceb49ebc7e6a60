package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"davmigrate/pkg/database"
	"davmigrate/pkg/ui"
)

var (
	statusLimit int
	assumeYes   bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or clear the upload ledger",
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many files are recorded in the ledger",
	RunE:  runLedgerStatus,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every ledger entry",
	Long: `Delete every ledger entry. The next upload run will upload all files
again, including the ones already on the remote store.`,
	RunE: runLedgerClear,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)

	ledgerStatusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "number of entries to list (0 = count only)")
	ledgerClearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
}

func runLedgerStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	ui.PrintInfo("Ledger table", store.Table())
	ui.PrintInfo("Entries", fmt.Sprintf("%d", count))

	if count == 0 || statusLimit <= 0 {
		return nil
	}

	entries, err := store.List(ctx, statusLimit)
	if err != nil {
		return err
	}
	fmt.Println()
	for _, e := range entries {
		fmt.Printf("  %s\n", e.Identity())
	}
	if int64(len(entries)) < count {
		fmt.Printf("  %s\n", ui.Dim(fmt.Sprintf("... and %d more", count-int64(len(entries)))))
	}
	return nil
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if !assumeYes {
		fmt.Printf("Delete all entries from %s? (y/N): ", store.Table())
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	if err := store.Clear(ctx); err != nil {
		return err
	}
	ui.PrintSuccess("Ledger cleared")
	return nil
}
