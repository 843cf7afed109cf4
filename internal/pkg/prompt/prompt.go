// Package prompt renders retrieved passages and a question into the
// generation prompt and resolves the citations an answer makes.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/futig/compliance-rag/internal/chunker"
	"github.com/futig/compliance-rag/internal/entity"
)

// InsufficientContextNotice opens every answer produced without usable context.
const InsufficientContextNotice = "The available compliance documents do not contain enough information to answer this question."

const header = "You are a compliance expert assistant. Answer the question based ONLY on the provided context from official policy and regulatory documents."

const instructions = `INSTRUCTIONS:
1. Answer only from the context above. Do not use outside knowledge.
2. Cite every statement with its source index using [Source X] notation.
3. Use bullet points or numbered steps for procedures and lists.
4. Include specific regulation references (e.g., OSHA 1910.1030) when the context mentions them.
5. If the context does not contain enough information to fully answer the question, say so explicitly.`

const noContextInstructions = `INSTRUCTIONS:
1. No relevant passages were found in the knowledge base.
2. Do not guess or use outside knowledge.
3. State that the available documents do not contain enough information to answer the question.`

// Prompt is a rendered generation prompt.
type Prompt struct {
	Text       string
	TokenCount int
	// Passages is the number of passages kept; Dropped were cut to fit the budget.
	Passages  int
	Dropped   int
	NoContext bool
}

// Builder renders prompts deterministically. The zero value counts tokens
// as whitespace-separated words.
type Builder struct {
	counter chunker.TokenCounter
}

func NewBuilder(counter chunker.TokenCounter) *Builder {
	return &Builder{counter: counter}
}

func (b *Builder) count(text string) int {
	if b.counter == nil {
		return chunker.WordCounter{}.Count(text)
	}
	return b.counter.Count(text)
}

// Build renders question and passages. When the full prompt exceeds
// maxTokens, passages are dropped lowest score first; the top passage is
// always kept. A maxTokens of zero or less disables the bound.
func (b *Builder) Build(question string, result entity.RetrievalResult, maxTokens int) (Prompt, CitationMap) {
	question = strings.TrimSpace(question)
	if result.Empty() {
		text := render(question, nil)
		return Prompt{Text: text, TokenCount: b.count(text), NoContext: true}, CitationMap{}
	}

	kept := append([]entity.RetrievedPassage(nil), result.Passages...)
	text := render(question, kept)
	tokens := b.count(text)
	for maxTokens > 0 && tokens > maxTokens && len(kept) > 1 {
		kept = dropLowest(kept)
		text = render(question, kept)
		tokens = b.count(text)
	}

	citations := make(CitationMap, len(kept))
	for i, p := range kept {
		citations[i+1] = entity.Citation{
			Index:         i + 1,
			ChunkID:       p.ChunkID,
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Score:         p.Score,
		}
	}

	return Prompt{
		Text:       text,
		TokenCount: tokens,
		Passages:   len(kept),
		Dropped:    len(result.Passages) - len(kept),
	}, citations
}

// dropLowest removes the lowest-scoring passage. Among equal scores the
// later one goes, and the first passage is never removed.
func dropLowest(passages []entity.RetrievedPassage) []entity.RetrievedPassage {
	victim := len(passages) - 1
	for i := len(passages) - 2; i >= 1; i-- {
		if passages[i].Score < passages[victim].Score {
			victim = i
		}
	}
	return append(passages[:victim:victim], passages[victim+1:]...)
}

func render(question string, passages []entity.RetrievedPassage) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\nCONTEXT:\n")
	if len(passages) == 0 {
		sb.WriteString("(no relevant passages found)\n")
	}
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n", i+1, Label(p), strings.TrimSpace(p.Text))
	}
	sb.WriteString("\nQUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	if len(passages) == 0 {
		sb.WriteString(noContextInstructions)
	} else {
		sb.WriteString(instructions)
	}
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}

// Label names the passage source in the prompt.
func Label(p entity.RetrievedPassage) string {
	title := p.DocumentTitle
	if title == "" {
		title = p.DocumentID
	}
	if p.TotalChunks > 1 {
		return fmt.Sprintf("%s, part %d/%d", title, p.Ordinal+1, p.TotalChunks)
	}
	return title
}

// CitationMap maps 1-based citation indices to their source chunks.
type CitationMap map[int]entity.Citation

// Indices returns the known indices in ascending order.
func (m CitationMap) Indices() []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Resolve returns citations for the given indices in order, skipping
// unknown indices and repeats.
func (m CitationMap) Resolve(indices []int) []entity.Citation {
	seen := make(map[int]struct{}, len(indices))
	out := make([]entity.Citation, 0, len(indices))
	for _, idx := range indices {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		if c, ok := m[idx]; ok {
			out = append(out, c)
		}
	}
	return out
}
