package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
)

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "osha-bloodborne-pathogens", DocumentID("/data/OSHA_Bloodborne Pathogens.pdf"))
	assert.Equal(t, "hipaa-2024", DocumentID("--HIPAA (2024)--.md"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Needlestick protocol", Title("docs/Needlestick_protocol.txt"))
}

func TestParse(t *testing.T) {
	text, err := Parse("a.md", []byte("\uFEFF# Heading\n\nBody"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nBody", text)

	_, err = Parse("a.txt", []byte{0xff, 0xfe, 0xfd})
	assert.ErrorIs(t, err, entity.ErrInvalidDocument)

	_, err = Parse("a.xlsx", []byte("x"))
	assert.ErrorIs(t, err, entity.ErrUnsupportedFile)

	_, err = Parse("broken.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, entity.ErrInvalidDocument)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_policy.txt"), []byte("Policy B."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a-guide.md"), []byte("Guide A."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("skip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte{0xff}, 0o644))

	docs, errs := LoadDir(dir)
	require.Len(t, errs, 1)
	require.Len(t, docs, 2)
	assert.Equal(t, "b-policy", docs[0].ID)
	assert.Equal(t, "Policy B.", docs[0].Text)
	assert.Equal(t, "b_policy.txt", docs[0].Source)
	assert.Equal(t, "a-guide", docs[1].ID)
}
