package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/launchcheck/internal/auth"
	"github.com/spf13/cobra"
)

// TokenFlags shape the token printed by "launchcheck token".
type TokenFlags struct {
	Subject    string
	Scopes     []string
	JSON       bool
	HashSecret bool
}

func createTokenCommand(globalFlags *GlobalFlags, flags *TokenFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the control API",
		Long: `Sign a token with server.auth_secret from the config file. Give
"read" for status and results only, "control" for everything.

Examples:
  launchcheck token --config launchcheck.toml --subject ci --scope control
  export LAUNCHCHECK_API_TOKEN=$(launchcheck token --scope read)
  echo -n "$SECRET" | launchcheck token --hash-secret   # secret_hash for [[server.clients]]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.HashSecret {
				return hashSecret(cmd.InOrStdin(), cmd.OutOrStdout())
			}
			cfg, err := loadConfig(globalFlags)
			if err != nil {
				return err
			}
			svc, err := cfg.Auth()
			if err != nil {
				return err
			}
			if svc == nil {
				return errors.New("server.auth_secret is not set")
			}
			tok, err := svc.Issue(flags.Subject, normalizeScopes(flags.Scopes))
			if err != nil {
				return err
			}
			if flags.JSON {
				return printJSON(cmd.OutOrStdout(), tok)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			return err
		},
	}
	cmd.Flags().StringVar(&flags.Subject, "subject", "launchcheck", "token subject")
	cmd.Flags().StringSliceVar(&flags.Scopes, "scope", []string{auth.ScopeControl}, "granted scopes: read, control")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the token with its expiry as JSON")
	cmd.Flags().BoolVar(&flags.HashSecret, "hash-secret", false, "read a client secret from stdin and print its bcrypt hash")
	return cmd
}

func hashSecret(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	hash, err := auth.HashSecret(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func normalizeScopes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
