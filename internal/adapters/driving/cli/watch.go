package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/watcher"
	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var (
	watchScan   bool
	watchSettle time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index text files dropped into a directory",
	Long: `Watches an inbox directory and indexes .txt and .md files as they are
created or rewritten. Defaults to upload.watch_dir from the config.`,
	Annotations: map[string]string{"banner": "true"},
	Args:        cobra.MaximumNArgs(1),
	RunE:        runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", true, "index files already in the directory")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watcher.DefaultSettle, "quiet period before a file is indexed")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return fmt.Errorf("upload: %w", errNotConfigured)
	}

	dir := ""
	if len(args) > 0 {
		dir = args[0]
	} else if cfg != nil {
		dir = cfg.Upload.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("%w: no directory given and upload.watch_dir is not set", domain.ErrInvalidInput)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.New(uploadService, log, watcher.WithInitialScan(watchScan), watcher.WithSettle(watchSettle))

	cmd.Printf("Watching %s. Press Ctrl+C to stop.\n", dir)
	return w.Run(ctx, dir)
}
