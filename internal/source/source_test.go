package source

import (
	"os"
	"path/filepath"
	"testing"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func kindsAndTokens(refs []models.SourceRef) [][]string {
	var out [][]string
	for _, r := range refs {
		out = append(out, append([]string{r.Kind.String()}, r.Tokens...))
	}
	return out
}

func TestParseSingleReferences(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kind   models.SourceKind
		tokens []string
	}{
		{"numeric id", "123456", models.KindID, []string{"123456"}},
		{"numeric id with spaces", "  42 ", models.KindID, []string{"42"}},
		{"site url", "https://civitai.com/models/123", models.KindSite, []string{"123"}},
		{"site url with slug", "https://civitai.com/models/123/some-model-name", models.KindSite, []string{"123"}},
		{"site url with version", "https://civitai.com/models/123?modelVersionId=456", models.KindSite, []string{"123", "456"}},
		{"site url with slug and version", "https://civitai.com/models/123/name?modelVersionId=456", models.KindSite, []string{"123", "456"}},
		{"api url", "https://civitai.com/api/download/models/789", models.KindAPI, []string{"789"}},
		{"api url with query", "https://civitai.com/api/download/models/789?type=Model&format=SafeTensor", models.KindAPI, []string{"789"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs, err := Parse([]string{tt.input})
			require.NoError(t, err)
			require.Len(t, refs, 1)
			assert.Equal(t, tt.kind, refs[0].Kind)
			assert.Equal(t, tt.tokens, refs[0].Tokens)
		})
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"site url without id", "https://civitai.com/models/"},
		{"api url without id", "https://civitai.com/api/v1/images"},
		{"unknown string", "definitely-not-a-model"},
		{"negative number", "-5"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]string{tt.input})
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindInput), "got %v", err)
		})
	}
}

func TestParseCommaListIsIdempotent(t *testing.T) {
	joined, err := Parse([]string{"1, https://civitai.com/models/2?modelVersionId=3 ,4"})
	require.NoError(t, err)
	split, err := Parse([]string{"1", "https://civitai.com/models/2?modelVersionId=3", "4"})
	require.NoError(t, err)

	assert.Equal(t, kindsAndTokens(split), kindsAndTokens(joined))
	assert.Equal(t, [][]string{{"id", "1"}, {"site", "2", "3"}, {"id", "4"}}, kindsAndTokens(joined))
}

func TestParseCommaListDropsBlankSegments(t *testing.T) {
	refs, err := Parse([]string{"1,, ,2,"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "1"}, {"id", "2"}}, kindsAndTokens(refs))
}

func TestParseBatchFileEquivalence(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "batch.txt")
	writeFile(t, batch, "11,\nhttps://civitai.com/api/download/models/22,\n33\n")

	fromFile, err := Parse([]string{batch})
	require.NoError(t, err)
	direct, err := Parse([]string{"11", "https://civitai.com/api/download/models/22", "33"})
	require.NoError(t, err)

	assert.Equal(t, kindsAndTokens(direct), kindsAndTokens(fromFile))
}

func TestParseNestedBatchFileRelativeToParent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "inner.txt"), "2,3")
	writeFile(t, filepath.Join(dir, "outer.txt"), "1,sub/inner.txt,4")

	// Run from somewhere else so relative resolution must use the parent file.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	refs, err := Parse([]string{filepath.Join(dir, "outer.txt")})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "1"}, {"id", "2"}, {"id", "3"}, {"id", "4"}}, kindsAndTokens(refs))
}

func TestParseBadEntryNamesBatchFile(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "batch.txt")
	writeFile(t, batch, "1,nonsense")

	_, err := Parse([]string{batch})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindInput))
	assert.Contains(t, err.Error(), "nonsense")
	assert.Contains(t, err.Error(), batch)
}

func TestParseDetectsBatchCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "1,b.txt")
	writeFile(t, b, "2,a.txt")

	_, err := Parse([]string{a})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchCycle)
	assert.True(t, errs.Is(err, errs.KindInput))
}

func TestParseSelfIncludingBatchFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "self.txt")
	writeFile(t, a, "self.txt")

	_, err := Parse([]string{a})
	assert.ErrorIs(t, err, ErrBatchCycle)
}

func TestParseDiamondIncludeIsNotACycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared.txt"), "9")
	writeFile(t, filepath.Join(dir, "left.txt"), "shared.txt")
	writeFile(t, filepath.Join(dir, "right.txt"), "shared.txt")
	writeFile(t, filepath.Join(dir, "top.txt"), "left.txt,right.txt")

	refs, err := Parse([]string{filepath.Join(dir, "top.txt")})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "9"}, {"id", "9"}}, kindsAndTokens(refs))
}
