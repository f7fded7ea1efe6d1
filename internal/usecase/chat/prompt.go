package chat

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

const systemInstruction = "You are a helpful AI assistant. Use the following context to answer the user's question."

const tableRules = `When formatting tables, follow these rules:
1. Use proper Markdown table syntax with headers and alignment
2. Include a clear title for the table
3. Ensure all columns are properly aligned
4. Use consistent formatting for similar data
5. Add brief explanations if needed
6. Format the table like this:

| Header 1 | Header 2 | Header 3 |
|----------|----------|----------|
| Data 1   | Data 2   | Data 3   |
| Data 4   | Data 5   | Data 6   |

For document comparisons, use this format:

Document 1 Name
| Aspect | Details |
|--------|---------|
| Point 1 | Info 1  |
| Point 2 | Info 2  |

Document 2 Name
| Aspect | Details |
|--------|---------|
| Point 1 | Info 1  |
| Point 2 | Info 2  |

Always ensure tables are properly aligned and formatted for readability.`

// comparisonPhrases trigger the table rules when found anywhere in the question.
var comparisonPhrases = []string{"compare", "differences", "versus", "table"}

// wantsTable reports whether the question asks for a comparison or a table.
// "vs" only counts as a whole word.
func wantsTable(question string) bool {
	q := strings.ToLower(question)
	for _, p := range comparisonPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !('a' <= r && r <= 'z') && r != '.'
	}) {
		if w == "vs" || w == "vs." {
			return true
		}
	}
	return false
}

// buildPrompt assembles the system block, the last maxTurns valid history turns
// and the question.
func buildPrompt(question string, sources domain.RetrievalResult, history []domain.Turn, maxTurns int) []domain.Message {
	var sys strings.Builder
	sys.WriteString(systemInstruction)
	if wantsTable(question) {
		sys.WriteString("\n\n")
		sys.WriteString(tableRules)
	}
	if len(sources) > 0 {
		sys.WriteString("\n\nRelevant context:")
		for i, sc := range sources {
			fmt.Fprintf(&sys, "\n\n[%d] (source: %s)\n%s", i+1, sc.Chunk.Source, sc.Chunk.Text)
		}
	}

	turns := validTurns(history)
	if maxTurns >= 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	msgs := make([]domain.Message, 0, len(turns)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: sys.String()})
	for _, t := range turns {
		msgs = append(msgs, domain.Message{Role: t.Role, Content: t.Text})
	}
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: question})
}

// validTurns drops turns with an unknown role or no text.
func validTurns(history []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(history))
	for _, t := range history {
		if !t.Role.Valid() || strings.TrimSpace(t.Text) == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
