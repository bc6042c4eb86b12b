package main

import (
	"fmt"

	"github.com/centavo-app/centavo/internal/ledger/store"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:     "user",
	GroupID: "records",
	Short:   "Manage the local profile",
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the local profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		u := env.user
		fmt.Printf("User %d\n", u.ID)
		fmt.Printf("  Email:    %s\n", u.Email)
		if u.DisplayName != "" {
			fmt.Printf("  Name:     %s\n", u.DisplayName)
		}
		fmt.Printf("  Currency: %s\n", u.Currency)
		fmt.Printf("  Active:   %t\n", u.Active)
		fmt.Printf("  Sync:     %s\n", u.SyncStatus)
		return nil
	},
}

var userSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch store.UserUpdate
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			patch.DisplayName = &v
		}
		if cmd.Flags().Changed("currency") {
			v, _ := cmd.Flags().GetString("currency")
			patch.Currency = &v
		}
		if patch.DisplayName == nil && patch.Currency == nil {
			return fmt.Errorf("nothing to update; pass --name or --currency")
		}

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		u, err := env.store.UpdateUser(cmd.Context(), env.user.ID, patch)
		if err != nil {
			return err
		}

		fmt.Printf("Updated profile for %s\n", u.Email)
		return nil
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the profile",
	Long: `Flag the profile inactive. The account is never hard-deleted; the
deactivation syncs to the backend as a profile update.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.store.DeactivateUser(cmd.Context(), env.user.ID); err != nil {
			return err
		}

		fmt.Printf("Deactivated %s\n", env.user.Email)
		return nil
	},
}

func init() {
	userSetCmd.Flags().String("name", "", "new display name")
	userSetCmd.Flags().String("currency", "", "new currency code")

	userCmd.AddCommand(userShowCmd, userSetCmd, userDeactivateCmd)
	rootCmd.AddCommand(userCmd)
}
