package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koopa0/docchat/internal/knowledge"
	"github.com/koopa0/docchat/internal/memory"
)

// systemInstructions frame every generation call.
const systemInstructions = `You are a helpful assistant that answers questions using the provided context. The context is split into numbered chunks drawn from the user's documents and, when marked, from web search.

Guidelines:
1. If the context contains relevant information, give a comprehensive answer.
2. When summarizing, combine information from all relevant chunks.
3. Preserve the meaning and accuracy of the source material.
4. If the context does not answer the question, say so clearly instead of guessing.
5. Refer to the numbered chunks you used when possible.

Format the answer in markdown.`

// Assembled is the outcome of prompt assembly: the prompt itself plus
// exactly the items it contains. Citations must be drawn from Included and
// nothing else.
type Assembled struct {
	Prompt   string
	Included []knowledge.Result
}

// assemblePrompt dedupes and orders the retrieved items, truncates them to
// the character budget, and renders the final prompt.
//
// Ordering is descending score; equal scores break by origin (local before
// web), then document id, then chunk index, so assembly is deterministic.
// On overflow the lowest-ranked items are dropped: the ordered list is cut
// at the first item that no longer fits.
func assemblePrompt(question string, history []memory.Turn, results []knowledge.Result, budget int) Assembled {
	ordered := rankResults(results)

	var included []knowledge.Result
	var blocks []string
	used := 0
	for _, r := range ordered {
		block := renderBlock(len(included)+1, r)
		if used+len(block) > budget {
			break
		}
		used += len(block)
		included = append(included, r)
		blocks = append(blocks, block)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	if len(blocks) > 0 {
		b.WriteString(strings.Join(blocks, "\n"))
	} else {
		b.WriteString("(none)\n")
	}

	if dialogue := memory.FormatDialogue(history); dialogue != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(dialogue)
		b.WriteByte('\n')
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return Assembled{Prompt: b.String(), Included: included}
}

// rankResults dedupes by chunk id (best score wins) and sorts by the
// documented ordering policy.
func rankResults(results []knowledge.Result) []knowledge.Result {
	best := make(map[string]knowledge.Result, len(results))
	for _, r := range results {
		if prev, ok := best[r.ChunkID]; !ok || r.Score > prev.Score {
			best[r.ChunkID] = r
		}
	}

	ordered := make([]knowledge.Result, 0, len(best))
	for _, r := range best {
		ordered = append(ordered, r)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Origin != b.Origin {
			return a.Origin == knowledge.OriginLocal
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Index < b.Index
	})
	return ordered
}

// renderBlock formats one context item. The label carries enough provenance
// for the model to refer back to it.
func renderBlock(n int, r knowledge.Result) string {
	var label strings.Builder
	fmt.Fprintf(&label, "[%d] %s", n, r.Title)
	if r.Page > 0 {
		fmt.Fprintf(&label, ", page %d", r.Page)
	}
	if r.Origin == knowledge.OriginWeb {
		label.WriteString(" (web)")
	}
	return fmt.Sprintf("%s\n%s\n", label.String(), r.Text)
}
