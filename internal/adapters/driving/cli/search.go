package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

var (
	searchTopK   int
	searchFilter string
	searchEf     int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed passages",
	Long: `Embeds the query and returns the nearest chunks from the vector index.
Use --filter to restrict hits with a boolean expression over scalar
fields, e.g. 'book_id == "42" and chapter > 2'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchFilter, "filter", "f", "", "filter expression")
	searchCmd.Flags().IntVar(&searchEf, "ef", 0, "HNSW search breadth (0 uses the configured value)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return fmt.Errorf("search: %w", errNotConfigured)
	}

	hits, err := searchService.Search(commandContext(cmd), args[0], domain.SearchOptions{
		TopK:   searchTopK,
		Filter: searchFilter,
		Ef:     searchEf,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, hits)
	}
	outputSearchTable(cmd, hits)
	return nil
}

// searchResult is the JSON shape of a hit.
type searchResult struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	BookID     string  `json:"book_id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Source     string  `json:"source"`
	Chapter    int     `json:"chapter"`
	PageNumber int     `json:"page_number"`
	Timestamp  int64   `json:"timestamp"`
	Content    string  `json:"content"`
}

func outputSearchJSON(cmd *cobra.Command, hits []domain.SearchHit) error {
	out := make([]searchResult, len(hits))
	for i, h := range hits {
		d := h.Document
		out[i] = searchResult{
			ID:         h.ID,
			Score:      h.Score,
			BookID:     d.BookID,
			Title:      d.Title,
			Author:     d.Author,
			Source:     d.Source,
			Chapter:    d.Chapter,
			PageNumber: d.PageNumber,
			Timestamp:  d.Timestamp,
			Content:    d.Content,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, hits []domain.SearchHit) {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, h := range hits {
		d := h.Document
		cmd.Printf("  [%d] %s by %s, chapter %d (%.4f)\n", i+1, d.Title, d.Author, d.Chapter, h.Score)
		cmd.Printf("      %s  source=%s book=%s\n", h.ID, d.Source, d.BookID)
		cmd.Printf("      %s\n", snippet(d.Content, 160))
		cmd.Println()
	}
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
