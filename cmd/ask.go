package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/rag"
)

var (
	askFilter   string
	askDocument string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&askFilter, "filter", "", "restrict sources: local, web, document, latest")
	askCmd.Flags().StringVar(&askDocument, "document", "", "document id, implies --filter document")
	rootCmd.AddCommand(askCmd)
}

func runAsk(question string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	filter := rag.SourceFilter{Kind: rag.FilterKind(askFilter)}
	if askDocument != "" {
		filter = rag.SourceFilter{Kind: rag.FilterDocument, DocumentID: askDocument}
	}

	answer, err := a.Engine.Chat(ctx, rag.ChatRequest{Question: question, Filter: filter})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if answer.Note != "" {
		fmt.Printf("\nNote: %s\n", answer.Note)
	}
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, source := range answer.Sources {
			origin := ""
			if source.Origin == knowledge.OriginWeb {
				origin = " (web)"
			}
			fmt.Printf("  [%d] %s%s, score %.2f\n", i+1, source.Title, origin, source.Score)
		}
		fmt.Printf("Confidence: %.2f\n", answer.Confidence)
	}
	return nil
}
