// Package cli is the tip command tree. Every command prints one summary line
// on stdout and returns ErrUnhealthy when its verdict calls for exit code 1.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Register connectors via init()
	_ "github.com/vthamada/territorial-intelligence-platform-sub001/internal/connectors"
)

const appName = "tip"

// ErrUnhealthy means the command finished and printed its summary, but the
// outcome it reports is a failure.
var ErrUnhealthy = errors.New("unhealthy outcome")

// Execute runs the command tree with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(os.Stdout).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree writing summaries to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Territorial intelligence ingestion and operations",
		Long: `tip ingests public datasets for one municipality into the warehouse,
records every run with its quality checks, and reports on operational health.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	cmd.AddCommand(
		a.runCmd(),
		a.jobsCmd(),
		a.qualityCmd(),
		a.contractsCmd(),
		a.readinessCmd(),
		a.robustnessCmd(),
		a.incidentsCmd(),
	)
	return cmd
}

// summary prints the one-line outcome of a command.
func (a *app) summary(format string, args ...any) {
	fmt.Fprintf(a.out, format+"\n", args...)
}
