// Package cli provides the command-line interface for gradewatch.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gradewatch/internal/app"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

const defaultConfigPath = "./gradewatch.yaml"

// ExitError carries a process exit status out of a command. A nil Err means
// the failure was already reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "gradewatch",
		Short:         "Watch the grade portal and notify on new grades",
		Long:          "gradewatch logs in to the campus portal, polls the grade listing at random intervals and sends a notification for every grade that was not there before.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file (yaml or json)")

	load := func() (*app.App, error) {
		a, err := app.New(configPath, Version)
		if err != nil {
			return nil, &ExitError{Code: app.ExitStartupFailed, Err: fmt.Errorf("load %s: %w", configPath, err)}
		}
		return a, nil
	}

	root.AddCommand(
		newRunCmd(load),
		newCheckCmd(load),
		newNotifyTestCmd(load),
		newJournalCmd(load),
		newVersionCmd(),
	)
	return root
}

type loader func() (*app.App, error)

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watcher until interrupted or an unrecoverable failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if code := a.Run(cmd.Context()); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}

func newCheckCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Log in and fetch once, print the records; sends nothing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			return a.Check(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newNotifyTestCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send one test message through every configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			if err := a.NotifyTest(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
			return nil
		},
	}
}

func newJournalCmd(load loader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the newest entries of the event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			return a.Journal(cmd.Context(), cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gradewatch %s (%s)\n", Version, Commit)
		},
	}
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.Err != nil {
			fmt.Fprintln(stderr, "gradewatch:", ee.Err)
		}
		return ee.Code
	}
	fmt.Fprintln(stderr, "gradewatch:", err)
	return app.ExitCommandFailed
}
