package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/filecompass/compass/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project tree and incrementally reindex on change",
		Long: `Watch starts a file system watcher over the project root (fsnotify,
falling back to polling where fsnotify is unavailable) and runs an
incremental scan whenever a batch of changes settles.

Watch runs until interrupted. It never replaces a full rebuild: if the
persisted index is corrupt, run 'compass scan --force-rebuild' first.`,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx := c.Context()
			logger := newLogger()

			eng, err := openEngine(ctx, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer func() { _ = eng.Close() }()

			opts := watcher.DefaultOptions()
			if debounce > 0 {
				opts.DebounceWindow = debounce
			}

			w, err := watcher.NewFSWatcher(opts)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer func() { _ = w.Stop() }()

			errCh := make(chan error, 1)
			go func() { errCh <- w.Start(ctx, eng.Root()) }()

			fmt.Fprintf(c.OutOrStdout(), "watching %s (debounce %s)\n", eng.Root(), opts.DebounceWindow)

			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-errCh:
					if err != nil && err != ctx.Err() {
						return fmt.Errorf("watcher stopped: %w", err)
					}
					return nil
				case event, ok := <-w.Events():
					if !ok {
						return nil
					}
					logger.Debug("file event", slog.String("path", event.Path), slog.String("op", event.Operation.String()))
					stats, err := eng.IncrementalBuild(ctx)
					if err != nil {
						logger.Warn("incremental reindex failed", slog.String("error", err.Error()))
						continue
					}
					if stats.FilesAdded+stats.FilesModified+stats.FilesRemoved > 0 {
						fmt.Fprintf(c.OutOrStdout(), "reindexed: +%d ~%d -%d (%d chunks)\n",
							stats.FilesAdded, stats.FilesModified, stats.FilesRemoved, stats.ChunksIndexed)
					}
				case watchErr, ok := <-w.Errors():
					if !ok {
						continue
					}
					logger.Warn("watcher error", slog.String("error", watchErr.Error()))
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Override the default event debounce window")

	return cmd
}
