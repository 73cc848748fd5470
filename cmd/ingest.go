package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/docchat/internal/rag"
)

var ingestDynamic bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url> [...]",
	Short: "Ingest files or web pages into the knowledge base",
	Long: `Ingest adds documents to the knowledge base. Arguments starting with
http:// or https:// are fetched as web pages; everything else is read as a
local file. A failed item is reported and does not stop the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestDynamic, "dynamic", false, "render JavaScript before extracting web pages")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(sources []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	failures := 0
	for _, source := range sources {
		if isURL(source) {
			failures += ingestOneURL(ctx, a.Engine, source)
			continue
		}
		failures += ingestOneFile(ctx, a.Engine, source)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d sources failed", failures, len(sources))
	}
	return nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func ingestOneFile(ctx context.Context, engine *rag.Engine, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
		return 1
	}

	result, err := engine.IngestFile(ctx, filepath.Base(path), data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", path, err)
		return 1
	}

	printIngestResult(result)
	return 0
}

func ingestOneURL(ctx context.Context, engine *rag.Engine, url string) int {
	results, err := engine.IngestURL(ctx, url, ingestDynamic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", url, err)
		return 1
	}

	failures := 0
	for _, result := range results {
		if result.Status != "ok" {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", result.Source, result.Error)
			failures++
			continue
		}
		printIngestResult(result)
	}
	return failures
}

func printIngestResult(result rag.IngestResult) {
	fmt.Printf("  %s (%s): %d chunks\n", result.Title, result.DocumentID, result.ChunkCount)
	for _, warning := range result.Warnings {
		fmt.Printf("    warning: %s\n", warning)
	}
}
