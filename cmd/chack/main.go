// Command chack runs the assessment service: the HTTP API, queue consumers,
// the Lambda entry point and a few operator commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chack",
		Short:         "Security assessment service",
		Long:          "chack tracks security assessments and runs their scans once the trigger delay has passed.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newLambdaCmd(),
		newWatchCmd(),
		newCreateCmd(),
		newMigrateCmd(),
	)

	return root
}
