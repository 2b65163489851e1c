package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loykin/launchcheck/pkg/client"
	"github.com/spf13/cobra"
)

// APIFlags locate the daemon started by "launchcheck serve".
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	APIToken   string
	Yes        bool
}

// TokenEnv supplies --api-token when the flag is not given.
const TokenEnv = "LAUNCHCHECK_API_TOKEN"

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", client.DefaultConfig().BaseURL, "daemon control API URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&flags.APIToken, "api-token", "", "bearer token (default $"+TokenEnv+")")
}

func newAPIClient(flags *APIFlags) *client.Client {
	return client.New(client.Config{
		BaseURL: flags.APIUrl,
		Timeout: flags.APITimeout,
		Token:   orDefault(flags.APIToken, os.Getenv(TokenEnv)),
	})
}

func simpleAPICommand(use, short, done string, flags *APIFlags, call func(context.Context, *client.Client) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call(cmd.Context(), newAPIClient(flags)); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createPauseCommand(flags *APIFlags) *cobra.Command {
	return simpleAPICommand("pause", "Pause the running batch before its next application", "Testing paused.", flags,
		func(ctx context.Context, c *client.Client) error { return c.Pause(ctx) })
}

func createResumeCommand(flags *APIFlags) *cobra.Command {
	return simpleAPICommand("resume", "Resume a paused batch", "Testing resumed.", flags,
		func(ctx context.Context, c *client.Client) error { return c.Resume(ctx) })
}

func createTriggerCommand(flags *APIFlags) *cobra.Command {
	return simpleAPICommand("trigger", "Start a batch on the daemon", "Batch started.", flags,
		func(ctx context.Context, c *client.Client) error { return c.Trigger(ctx) })
}

func createCancelCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running batch after the current application",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.Yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Cancel the running batch?") {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not cancelled.")
				return nil
			}
			if err := newAPIClient(flags).Cancel(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Testing cancelled by user.")
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	cmd.Flags().BoolVarP(&flags.Yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the daemon's batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newAPIClient(flags).Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createResultsCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the results of the current or last batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := newAPIClient(flags).Results(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}
