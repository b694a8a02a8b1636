package index

import (
	"path/filepath"
	"testing"

	"civitdl/internal/models"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAndSearch(t *testing.T) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, IndexItem(idx, ItemFromEntry(models.DatabaseEntry{
		ModelID: 1, VersionID: 10, ModelName: "Sunset Painter", Creator: "alice",
		Tags: []string{"landscape"}, Filename: "sunset.safetensors",
	})))
	require.NoError(t, IndexItem(idx, ItemFromEntry(models.DatabaseEntry{
		ModelID: 2, VersionID: 20, ModelName: "Robot Helper", Creator: "bob",
		Tags: []string{"scifi"}, Filename: "robot.safetensors",
	})))

	res, err := SearchIndex(idx, "+creatorName:alice", 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "v_10", res.Hits[0].ID)
	assert.Equal(t, "Sunset Painter", res.Hits[0].Fields["modelName"])

	res, err = SearchIndex(idx, "robot", 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "v_20", res.Hits[0].ID)
}

func TestOpenOrCreateIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bleve")

	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	require.NoError(t, IndexItem(idx, Item{ID: "v_1", ModelName: "x"}))
	require.NoError(t, idx.Close())

	idx, err = OpenOrCreateIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
