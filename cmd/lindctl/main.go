// Command lindctl is the operator-facing CLI over a lind-go metadata
// store: fsck, dump, and format, in the same cobra/pflag tree shape
// rclone's own cmd package builds (spec.md §6's "embedding programs
// provide initialization and finalization entry points" — lindctl is
// one such embedder, not part of the core).
package main

import (
	"fmt"
	"os"

	daemon "github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
)

var dataDir string

func main() {
	root := &cobra.Command{
		Use:   "lindctl",
		Short: "Inspect and maintain a lind-go metadata store",
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./lind-data", "metadata store directory")

	root.AddCommand(fsckCmd(), dumpCmd(), formatCmd())

	// Install a host-signal handler that reports the signal and exits
	// with status 130. No checkpoint is taken on this path; a store left
	// open is recovered from its log by the next Open.
	daemon.SetSigHandler(func(sig os.Signal) error {
		fmt.Fprintf(os.Stderr, "lindctl: received %s, exiting\n", sig)
		os.Exit(130)
		return nil
	}, os.Interrupt, os.Kill)
	go func() {
		_ = daemon.ServeSignals()
	}()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lindctl:", err)
		os.Exit(1)
	}
}
