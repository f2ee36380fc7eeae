package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/vigild/internal/ledger"
	"github.com/user/vigild/internal/types"
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().String("window", "today", "reporting window: today, 7d, or 30d")
}

// usageCmd is the administrative cross-user report. It is the only caller
// of the ledger's AggregateAll.
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-user API cost totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		windowArg, _ := cmd.Flags().GetString("window")
		window, ok := types.ParseWindow(windowArg)
		if !ok {
			return fmt.Errorf("unknown window %q (use today, 7d, or 30d)", windowArg)
		}

		usage := ledger.New(filepath.Join(cfg.DataDir, "usage.jsonl"))
		totals, err := usage.AggregateAll(window)
		if err != nil {
			return fmt.Errorf("aggregate usage: %w", err)
		}

		if len(totals) == 0 {
			fmt.Println("No usage recorded in this window.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tCOST\tREQUESTS\tTOKENS IN\tTOKENS OUT")
		for _, t := range totals {
			fmt.Fprintf(w, "%s\t$%.4f\t%d\t%d\t%d\n",
				t.UserID, t.Cost, t.Requests, t.InputTokens, t.OutputTokens)
		}
		return w.Flush()
	},
}
