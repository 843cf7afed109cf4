// Package chunker splits documents into overlapping, token-bounded chunks.
//
// Text is split on paragraph boundaries first; paragraphs that do not fit the
// token budget on their own are split again on sentence boundaries. Chunks
// are contiguous byte ranges of the source text, so the original can always
// be rebuilt with Reassemble.
package chunker

import (
	"regexp"
	"strings"

	"github.com/futig/compliance-rag/internal/entity"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)
	sentenceBreak  = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

type Chunker struct {
	chunkSize int
	overlap   int
	counter   TokenCounter
}

type Option func(*Chunker)

// WithChunkSize sets the token budget per chunk.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets how many trailing tokens of a chunk may repeat in the next one.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Chunker) {
		if counter != nil {
			c.counter = counter
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		counter:   WordCounter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

func (c *Chunker) Overlap() int {
	return c.overlap
}

func (c *Chunker) Counter() TokenCounter {
	return c.counter
}

// unit is a paragraph or sentence: the byte range [start, end) of the text,
// including its trailing separator.
type unit struct {
	start  int
	end    int
	tokens int
}

// Split chunks the document text. Whitespace-only text yields no chunks.
func (c *Chunker) Split(doc entity.Document) []entity.Chunk {
	return c.SplitText(doc.ID, doc.Text)
}

func (c *Chunker) SplitText(documentID, text string) []entity.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := c.units(text)

	var (
		chunks    []entity.Chunk
		current   []unit
		curTokens int
		prevEnd   int
	)

	emit := func() {
		first, last := current[0], current[len(current)-1]
		body := text[first.start:last.end]
		chunks = append(chunks, entity.Chunk{
			ID:          entity.ChunkID(documentID, len(chunks)),
			DocumentID:  documentID,
			Text:        body,
			TokenCount:  c.counter.Count(body),
			Ordinal:     len(chunks),
			StartOffset: first.start,
			EndOffset:   last.end,
			Overlap:     overlapBytes(len(chunks), prevEnd, first.start),
		})
		prevEnd = last.end
	}

	for _, u := range units {
		if len(current) > 0 && curTokens+u.tokens > c.chunkSize {
			emit()
			current, curTokens = c.seed(current, u.tokens)
		}
		current = append(current, u)
		curTokens += u.tokens
	}
	if len(current) > 0 {
		emit()
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

// seed returns the trailing units of a closed chunk that open the next one:
// at most overlap tokens, never the whole chunk, and leaving room for next.
func (c *Chunker) seed(closed []unit, next int) ([]unit, int) {
	if c.overlap == 0 {
		return nil, 0
	}

	from, tokens := len(closed), 0
	for i := len(closed) - 1; i >= 1; i-- {
		if tokens+closed[i].tokens > c.overlap {
			break
		}
		tokens += closed[i].tokens
		from = i
	}
	for from < len(closed) && tokens+next > c.chunkSize {
		tokens -= closed[from].tokens
		from++
	}
	if from == len(closed) {
		return nil, 0
	}

	seeded := make([]unit, len(closed)-from)
	copy(seeded, closed[from:])
	return seeded, tokens
}

func overlapBytes(ordinal, prevEnd, start int) int {
	if ordinal == 0 || prevEnd <= start {
		return 0
	}
	return prevEnd - start
}

// units covers text with contiguous paragraph units, breaking oversized
// paragraphs into sentences.
func (c *Chunker) units(text string) []unit {
	paragraphs := mergeBlank(text, splitAt(text, 0, len(text), paragraphBreak))

	out := make([]unit, 0, len(paragraphs))
	for _, p := range paragraphs {
		p.tokens = c.counter.Count(text[p.start:p.end])
		if p.tokens <= c.chunkSize {
			out = append(out, p)
			continue
		}
		for _, s := range mergeBlank(text, splitAt(text, p.start, p.end, sentenceBreak)) {
			s.tokens = c.counter.Count(text[s.start:s.end])
			out = append(out, s)
		}
	}
	return out
}

// splitAt cuts text[start:end] after every match of sep.
func splitAt(text string, start, end int, sep *regexp.Regexp) []unit {
	var out []unit
	pos := start
	for _, m := range sep.FindAllStringIndex(text[start:end], -1) {
		cut := start + m[1]
		if cut <= pos {
			continue
		}
		out = append(out, unit{start: pos, end: cut})
		pos = cut
	}
	if pos < end {
		out = append(out, unit{start: pos, end: end})
	}
	return out
}

// mergeBlank folds whitespace-only units into a neighbour so that every
// unit carries text.
func mergeBlank(text string, units []unit) []unit {
	out := units[:0]
	pending := -1
	for _, u := range units {
		if strings.TrimSpace(text[u.start:u.end]) == "" {
			if len(out) > 0 {
				out[len(out)-1].end = u.end
			} else if pending < 0 {
				pending = u.start
			}
			continue
		}
		if pending >= 0 {
			u.start = pending
			pending = -1
		}
		out = append(out, u)
	}
	return out
}

// Reassemble rebuilds the document text from its chunks in order.
func Reassemble(chunks []entity.Chunk) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		b.WriteString(ch.Text[ch.Overlap:])
	}
	return b.String()
}
