package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var (
	ingestBookID  string
	ingestTitle   string
	ingestAuthor  string
	ingestChapter int
	ingestPage    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Index an extracted text file",
	Long: `Chunks, embeds and indexes the text of a document, bypassing the
event pipeline. Text with chapter headings is indexed per chapter.

Without --book-id, metadata is parsed from a file name of the form
{book_id}_{chapter}_{title}.txt. Use "-" to read text from stdin
(requires --book-id).`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBookID, "book-id", "", "book identifier")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "book title")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "book author")
	ingestCmd.Flags().IntVar(&ingestChapter, "chapter", 1, "chapter number when the text has no chapter headings")
	ingestCmd.Flags().IntVar(&ingestPage, "page", 0, "page number")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return fmt.Errorf("upload: %w", errNotConfigured)
	}

	ctx := commandContext(cmd)
	path := args[0]

	var (
		result domain.IndexResult
		err    error
	)

	if ingestBookID == "" {
		if path == "-" {
			return fmt.Errorf("%w: --book-id is required when reading stdin", domain.ErrInvalidInput)
		}
		result, err = uploadService.IngestFile(ctx, path)
	} else {
		var text []byte
		text, err = readInput(cmd, path)
		if err != nil {
			return err
		}
		result, err = uploadService.IngestText(ctx, string(text), domain.ChunkMetadata{
			BookID:     ingestBookID,
			Title:      ingestTitle,
			Author:     ingestAuthor,
			Chapter:    ingestChapter,
			PageNumber: ingestPage,
		})
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if result.Chunks == 0 {
		cmd.Println("Nothing to index.")
		return nil
	}
	cmd.Printf("Indexed %d chunks from %s (%d failed).\n", result.Written, path, result.Failed)
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
