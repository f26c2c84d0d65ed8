// Command scalemqctl is the operator CLI for a running scalemqd: it
// dials the gRPC control API and reports socket stats, tails lifecycle
// events, or drives a synthetic load against the control plane.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var controlAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "scalemqctl",
		Short: "scalemqctl - ScaleMQ operator CLI",
		Long:  "Talks to a running scalemqd over its gRPC control API: socket stats, a live event tail, and a control-plane bench loop.",
	}

	rootCmd.PersistentFlags().StringVar(&controlAddr, "control-addr", "localhost:7070", "scalemqd control API address")

	rootCmd.AddCommand(
		statCmd(),
		tailCmd(),
		benchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dialTimeout bounds each Stats call the stat and bench commands make,
// including any connection setup that call triggers.
const dialTimeout = 5 * time.Second
