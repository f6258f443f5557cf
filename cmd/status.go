package cmd

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/registry"
)

var statusWatch bool

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current fleet status",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings()

			if !statusWatch {
				return renderStatusOnce(cmd, settings.RegistryPath)
			}
			return watchStatus(cmd.Context(), cmd, settings.RegistryPath)
		},
	}
	cmd.Flags().BoolVar(&statusWatch, "watch", false, "re-render whenever the registry document changes")
	return cmd
}

func renderStatusOnce(cmd *cobra.Command, registryPath string) error {
	reg, err := registry.Load(registryPath)
	if err != nil {
		return err
	}
	if err := registry.Refresh(cmd.Context(), reg, buildController(), registry.RefreshFlags{}); err != nil {
		return err
	}
	printRegistryStatus(cmd.OutOrStdout(), reg)
	return nil
}

// watchStatus re-renders the status table each time the registry document
// on disk changes, until ctx is cancelled. Grounded on the teacher's use
// of fsnotify to react to on-disk config changes rather than polling.
func watchStatus(ctx context.Context, cmd *cobra.Command, registryPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("status --watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(registryPath); err != nil {
		return fmt.Errorf("status --watch: %w", err)
	}

	if err := renderStatusOnce(cmd, registryPath); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if err := renderStatusOnce(cmd, registryPath); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "status: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status --watch: %v\n", err)
		}
	}
}
