// Command scalemqd is the ScaleMQ daemon: it loads a socket topology,
// wires each socket's endpoints to the transports it names, and exposes
// a Prometheus metrics endpoint and a gRPC control API for operators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile   string
	topologyFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scalemqd",
		Short: "scalemqd - ScaleMQ messaging daemon",
		Long:  "Runs a socket topology: queues, readiness notification, and an event bus wired to TCP, vsock, Redis Stream, or in-process transports.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to daemon config JSON (optional, defaults apply)")
	rootCmd.PersistentFlags().StringVar(&topologyFile, "topology", "", "Path to socket topology YAML (required)")

	rootCmd.AddCommand(
		daemonCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print scalemqd's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("scalemqd dev")
			return nil
		},
	}
}
