package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/config"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash an admin password for WORKBENCH_ADMIN_PASSWORD_HASH",
	Long: `Reads a password from stdin and prints its bcrypt hash. BCRYPT_COST and PASSWORD_PEPPER are honoured and
must match the server's environment.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, _ []string) error {
	raw, err := readAllFrom(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(raw, "\r\n")
	if password == "" {
		return fmt.Errorf("password is empty")
	}
	if len(password) > 72 {
		return fmt.Errorf("password must be at most 72 bytes")
	}

	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}
	hash, err := passwords.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}
