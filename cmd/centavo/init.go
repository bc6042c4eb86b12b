package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/centavo-app/centavo/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local profile and data directory",
	Long: `Initialize the data directory, write the config file and create the
local user profile. Run once on a new device.

Example usage:
  centavo init --email you@example.com --name "Ada"
  centavo init --email you@example.com --endpoint https://sync.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		apiKey, _ := cmd.Flags().GetString("api-key")
		force, _ := cmd.Flags().GetBool("force")

		if email == "" {
			return fmt.Errorf("--email is required")
		}

		dataDir := cfg.DataDir
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(config.DefaultDataDir(), "config.yaml")
		}
		if _, err := os.Stat(configPath); err == nil && !force {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
		}

		content := fmt.Sprintf("user_email: %s\n", email)
		if name != "" {
			content += fmt.Sprintf("user_name: %q\n", name)
		}
		if endpoint != "" || apiKey != "" {
			content += "sync:\n"
			if endpoint != "" {
				content += fmt.Sprintf("  endpoint: %s\n", endpoint)
			}
			if apiKey != "" {
				content += fmt.Sprintf("  api_key: %s\n", apiKey)
			}
		}
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		// Reload so openEnv sees the new profile.
		reloaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = reloaded

		env, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Printf("Initialized %s\n", dataDir)
		fmt.Printf("User: %s (id %d)\n", env.user.Email, env.user.ID)
		if endpoint == "" {
			fmt.Println("Sync is disabled; set sync.endpoint in the config to enable it.")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("email", "", "user email (required)")
	initCmd.Flags().String("name", "", "display name")
	initCmd.Flags().String("endpoint", "", "remote sync endpoint")
	initCmd.Flags().String("api-key", "", "remote API key")
	initCmd.Flags().Bool("force", false, "overwrite an existing config")

	rootCmd.AddCommand(initCmd)
}
