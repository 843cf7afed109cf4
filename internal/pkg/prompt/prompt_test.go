package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
)

func passage(id string, score float64, text string) entity.RetrievedPassage {
	return entity.RetrievedPassage{
		ChunkID:       id,
		DocumentID:    "needlestick",
		DocumentTitle: "Needlestick protocol",
		Text:          text,
		TotalChunks:   1,
		Score:         score,
	}
}

func TestBuild_LabelsPassagesInOrder(t *testing.T) {
	result := entity.RetrievalResult{Passages: []entity.RetrievedPassage{
		passage("a", 0.9, "Wash the wound with soap and water."),
		passage("b", 0.7, "Report the incident within two hours."),
	}}

	p, cm := NewBuilder(nil).Build("What to do after a needlestick?", result, 0)

	assert.False(t, p.NoContext)
	assert.Equal(t, 2, p.Passages)
	assert.Zero(t, p.Dropped)
	assert.Contains(t, p.Text, "[Source 1: Needlestick protocol]\nWash the wound")
	assert.Contains(t, p.Text, "[Source 2: Needlestick protocol]\nReport the incident")
	assert.Contains(t, p.Text, "QUESTION: What to do after a needlestick?")
	assert.Contains(t, p.Text, "[Source X]")
	assert.Less(t, strings.Index(p.Text, "[Source 1"), strings.Index(p.Text, "[Source 2"))

	require.Len(t, cm, 2)
	assert.Equal(t, "a", cm[1].ChunkID)
	assert.Equal(t, "needlestick", cm[1].DocumentID)
	assert.Equal(t, "b", cm[2].ChunkID)
	assert.Equal(t, []int{1, 2}, cm.Indices())
}

func TestBuild_Deterministic(t *testing.T) {
	result := entity.RetrievalResult{Passages: []entity.RetrievedPassage{
		passage("a", 0.9, "one two three"),
		passage("b", 0.8, "four five six"),
	}}
	b := NewBuilder(nil)

	p1, cm1 := b.Build("q", result, 100)
	p2, cm2 := b.Build("q", result, 100)
	assert.Equal(t, p1, p2)
	assert.Equal(t, cm1, cm2)
}

func TestBuild_EmptyResultUsesNoContextTemplate(t *testing.T) {
	p, cm := NewBuilder(nil).Build("How do I report a breach?", entity.RetrievalResult{}, 100)

	assert.True(t, p.NoContext)
	assert.Empty(t, cm)
	assert.Contains(t, p.Text, "no relevant passages found")
	assert.Contains(t, p.Text, "do not contain enough information")
	assert.NotContains(t, p.Text, "[Source 1")
}

func TestBuild_DropsLowestScoreFirst(t *testing.T) {
	long := strings.Repeat("word ", 40)
	result := entity.RetrievalResult{Passages: []entity.RetrievedPassage{
		passage("top", 0.9, long),
		passage("low", 0.2, long),
		passage("mid", 0.5, long),
	}}
	b := NewBuilder(nil)

	full, _ := b.Build("q", result, 0)
	budget := full.TokenCount - 10

	p, cm := b.Build("q", result, budget)
	assert.LessOrEqual(t, p.TokenCount, budget)
	assert.Equal(t, 2, p.Passages)
	assert.Equal(t, 1, p.Dropped)
	assert.Equal(t, "top", cm[1].ChunkID)
	assert.Equal(t, "mid", cm[2].ChunkID)
}

func TestBuild_KeepsTopPassageOverBudget(t *testing.T) {
	result := entity.RetrievalResult{Passages: []entity.RetrievedPassage{
		passage("top", 0.9, strings.Repeat("long ", 500)),
		passage("next", 0.8, "short"),
	}}

	p, cm := NewBuilder(nil).Build("q", result, 50)
	assert.Equal(t, 1, p.Passages)
	assert.Greater(t, p.TokenCount, 50)
	require.Len(t, cm, 1)
	assert.Equal(t, "top", cm[1].ChunkID)
}

func TestLabel(t *testing.T) {
	p := entity.RetrievedPassage{DocumentID: "hipaa", Ordinal: 1, TotalChunks: 4}
	assert.Equal(t, "hipaa, part 2/4", Label(p))

	p.DocumentTitle = "HIPAA Privacy Rule"
	p.TotalChunks = 1
	assert.Equal(t, "HIPAA Privacy Rule", Label(p))
}

func TestParseCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []int
	}{
		{"none", "No sources here.", nil},
		{"source notation", "Wash it [Source 1]. Report it [Source 2].", []int{1, 2}},
		{"bare and grouped", "See [3] and [Sources 1, 3] and [source 2,4].", []int{3, 1, 2, 4}},
		{"repeats kept once", "[Source 2] then [Source 2]", []int{2}},
		{"zero ignored", "[Source 0]", nil},
		{"label with title ignored", "[Source 1: Needlestick protocol]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCitations(tt.text))
		})
	}
}

func TestResolve_DropsUnknownIndices(t *testing.T) {
	cm := CitationMap{
		1: {Index: 1, ChunkID: "a"},
		2: {Index: 2, ChunkID: "b"},
	}
	got := cm.Resolve([]int{2, 7, 1, 2})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ChunkID)
	assert.Equal(t, "a", got[1].ChunkID)
}

func TestStatesInsufficientContext(t *testing.T) {
	assert.True(t, StatesInsufficientContext(InsufficientContextNotice))
	assert.True(t, StatesInsufficientContext("There is insufficient information in the sources."))
	assert.False(t, StatesInsufficientContext("Wash the wound [Source 1]."))
}
