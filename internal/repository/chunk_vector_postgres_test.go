package repository

import (
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
)

func TestBuildSearchQuery_NoFilters(t *testing.T) {
	query, args := buildSearchQuery(pgvector.NewVector([]float32{1, 0}), 5, entity.SearchFilters{})

	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY score DESC, seq ASC")
	assert.Contains(t, query, "LIMIT $2")
	require.Len(t, args, 2)
	assert.Equal(t, 5, args[1])
}

func TestBuildSearchQuery_Filters(t *testing.T) {
	query, args := buildSearchQuery(pgvector.NewVector([]float32{1, 0}), 3, entity.SearchFilters{
		MaxClassification: entity.ClassificationInternal,
		DocumentIDs:       []string{"hipaa"},
		DocumentTypes:     []string{"policy", "procedure"},
	})

	assert.Contains(t, query, "WHERE classification = ANY($2) AND document_id = ANY($3) AND document_type = ANY($4)")
	assert.Contains(t, query, "LIMIT $5")
	require.Len(t, args, 5)
	assert.Equal(t, []string{"public", "internal"}, args[1])
	assert.Equal(t, []string{"hipaa"}, args[2])
	assert.Equal(t, 3, args[4])
}
