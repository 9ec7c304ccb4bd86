package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"billed/internal/auth"
	"billed/internal/cli"
	"billed/internal/config"
	"billed/internal/core"
	"billed/internal/storage"
	"billed/internal/store/api"
)

// Version is set at build time.
var Version = "dev"

type identity struct{ s core.Session }

func (i identity) Get() (core.Session, bool) { return i.s, true }

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:     "billedctl",
		Short:   "Operate the billed API",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(tokenCmd(cfg), billsCmd(cfg), migrateCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func sessionFlags(cmd *cobra.Command, email, role *string) {
	cmd.Flags().StringVar(email, "email", "", "identity email")
	cmd.Flags().StringVar(role, "role", "Employee", "identity role (Employee or Admin)")
	_ = cmd.MarkFlagRequired("email")
}

func parseSession(email, role string) (core.Session, error) {
	r, err := core.ParseRole(role)
	if err != nil {
		return core.Session{}, err
	}
	s := core.Session{Role: r, Email: email}
	return s, s.Validate()
}

func tokenCmd(cfg *config.Config) *cobra.Command {
	var email, role string
	var validity time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := parseSession(email, role)
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(s, []byte(cfg.APISecret), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	sessionFlags(cmd, &email, &role)
	cmd.Flags().DurationVar(&validity, "validity", time.Hour, "token lifetime")
	return cmd
}

func billsCmd(cfg *config.Config) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "bills",
		Short: "List the bills visible to an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := parseSession(email, role)
			if err != nil {
				return err
			}
			client, err := api.NewClient(cfg.APIBaseURL, []byte(cfg.APISecret), nil, nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StoreTimeout)
			defer cancel()
			bills, err := client.For(identity{s}).List(ctx)
			if err != nil {
				return fmt.Errorf("list bills: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(core.SortByDateDesc(bills))
		},
	}
	sessionFlags(cmd, &email, &role)
	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := storage.NewSQLiteRepository(dbPath)
			if err != nil {
				return err
			}
			if err := repo.Close(); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d (dirty=%t)\n", dbPath, version, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.SQLiteDBPath, "SQLite database path")
	return cmd
}
