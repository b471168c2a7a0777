package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lind-project/lind-go/internal/inode"
)

// dumpCmd walks every live inode and prints a one-line summary per
// record, stamped with a run id purely for correlating a dump against
// an operator's own notes — not part of the persisted data model.
func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every live inode in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := inode.Open(dataDir)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			runID := uuid.New()
			fmt.Printf("lindctl dump run=%s dir=%s dev=%d\n", runID, dataDir, store.DevID())
			store.Each(func(rec *inode.Inode) {
				fmt.Printf("  ino=%d kind=%-7s size=%-8d links=%-3d uid=%d gid=%d mode=%#o\n",
					rec.Number, rec.Kind, rec.Size, rec.LinkCount, rec.UID, rec.GID, rec.Mode)
			})
			return nil
		},
	}
}
