package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/vigild/internal/state"
	"github.com/user/vigild/internal/types"
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd, usersDeactivateCmd, usersActivateCmd)
	usersListCmd.Flags().String("status", "", "filter by status (active or inactive)")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry := state.NewRegistry(cfg.DataDir)

		statusArg, _ := cmd.Flags().GetString("status")
		users, err := registry.List(types.UserStatus(statusArg))
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		if len(users) == 0 {
			fmt.Println("No users registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tNAME\tSTATUS\tREGISTERED\tLAST SEEN")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				u.UserID,
				u.DisplayName,
				u.Status,
				u.RegisteredAt.Format(time.DateOnly),
				u.LastSeenAt.Format(time.DateTime),
			)
		}
		return w.Flush()
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <user-id>",
	Short: "Stop scheduling heartbeats for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry := state.NewRegistry(cfg.DataDir)
		if err := registry.SetStatus(types.UserID(args[0]), types.StatusInactive); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		fmt.Fprintf(os.Stdout, "User %s deactivated; takes effect at next daemon start.\n", args[0])
		return nil
	},
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate <user-id>",
	Short: "Resume scheduling heartbeats for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry := state.NewRegistry(cfg.DataDir)
		if err := registry.SetStatus(types.UserID(args[0]), types.StatusActive); err != nil {
			return fmt.Errorf("activate user: %w", err)
		}
		fmt.Fprintf(os.Stdout, "User %s activated; takes effect at next daemon start.\n", args[0])
		return nil
	},
}
