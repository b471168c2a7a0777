package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/lind-project/lind-go/internal/inode"
)

// formatCmd destroys and reinitializes a metadata store, mirroring
// rclone's own config-wizard confirmation prompts before an
// irreversible action.
func formatCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Destroy and reinitialize the metadata store at --data-dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("This will permanently erase %s, continue", dataDir),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					return fmt.Errorf("format aborted")
				}
			}
			dbPath := filepath.Join(dataDir, inode.MetadataFile)
			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", dbPath, err)
			}
			store, err := inode.Open(dataDir)
			if err != nil {
				return fmt.Errorf("reinitializing store: %w", err)
			}
			defer store.Close()
			fmt.Printf("lindctl: %s reformatted (dev=%d)\n", dataDir, store.DevID())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
