package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vip/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the training token",
	Long: `Generate and hash the bearer token that protects /train.

Store the hash as auth.trainTokenHash (or VIP_AUTH_TRAINTOKENHASH) and send the
token as "Authorization: Bearer <token>" or ?token=<token>.

Examples:
  vip token generate
  echo -n "$TOKEN" | vip token hash`,
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new token and its hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		hash, err := auth.HashToken(token)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Token: %s\n", token)
		fmt.Fprintf(out, "Hash:  %s\n", hash)
		fmt.Fprintln(out, "\nSave the token now. It cannot be recovered from the hash.")
		return nil
	},
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash [token]",
	Short: "Print the bcrypt hash of a token",
	Long:  `Print the bcrypt hash of a token given as argument or read from stdin.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}

		hash, err := auth.HashToken(strings.TrimSpace(token))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenGenerateCmd)
	tokenCmd.AddCommand(tokenHashCmd)
	rootCmd.AddCommand(tokenCmd)
}
