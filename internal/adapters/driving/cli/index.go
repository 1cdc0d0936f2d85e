package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var (
	deleteFilter string
	deleteBook   string
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete indexed chunks",
	Long: `Deletes chunks matching a filter expression, or every chunk of a book
with --book.`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteFilter, "filter", "f", "", "filter expression")
	deleteCmd.Flags().StringVar(&deleteBook, "book", "", "book identifier")
	deleteCmd.MarkFlagsMutuallyExclusive("filter", "book")
	deleteCmd.MarkFlagsOneRequired("filter", "book")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return fmt.Errorf("search: %w", errNotConfigured)
	}

	stats, err := searchService.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	cmd.Printf("Collection: %s\n", stats.Collection)
	cmd.Printf("Entities:   %d\n", stats.Entities)
	cmd.Printf("Loaded:     %t\n", stats.Loaded)
	return nil
}

func runDelete(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return fmt.Errorf("search: %w", errNotConfigured)
	}

	ctx := commandContext(cmd)

	if deleteBook != "" {
		if err := searchService.DeleteBook(ctx, deleteBook); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		cmd.Printf("Deleted chunks of book %s.\n", deleteBook)
		return nil
	}

	if err := searchService.Delete(ctx, deleteFilter); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted chunks matching %s.\n", deleteFilter)
	return nil
}
