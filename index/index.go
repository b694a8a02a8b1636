package index

import (
	"errors"
	"strconv"

	"civitdl/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "civitdl.bleve"

// Item is one downloaded model version. Fields are searchable by their
// JSON names, e.g. '+creatorName:someuser' or '+tags:anime'.
type Item struct {
	ID          string   `json:"id"` // v_<version id>
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	ModelID     string   `json:"modelId"`
	VersionID   string   `json:"versionId"`
	ModelName   string   `json:"modelName"`
	VersionName string   `json:"versionName,omitempty"`
	ModelType   string   `json:"modelType,omitempty"`
	BaseModel   string   `json:"baseModel,omitempty"`
	CreatorName string   `json:"creatorName,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
	Sorter      string   `json:"sorter,omitempty"`
	FilePath    string   `json:"filePath"`
	ModelDir    string   `json:"modelDir,omitempty"`
	ImageCount  int      `json:"imageCount,omitempty"`

	// Set by the torrent command.
	TorrentPath string `json:"torrentPath,omitempty"`
	MagnetLink  string `json:"magnetLink,omitempty"`
}

// ItemFromEntry builds the index item for a ledger entry.
func ItemFromEntry(entry models.DatabaseEntry) Item {
	vid := strconv.Itoa(entry.VersionID)
	return Item{
		ID:          "v_" + vid,
		Type:        "model_file",
		Name:        entry.Filename,
		ModelID:     strconv.Itoa(entry.ModelID),
		VersionID:   vid,
		ModelName:   entry.ModelName,
		VersionName: entry.VersionName,
		ModelType:   entry.ModelType,
		BaseModel:   entry.BaseModel,
		CreatorName: entry.Creator,
		Tags:        entry.Tags,
		Source:      entry.Source,
		FilePath:    entry.FilePath,
		ModelDir:    entry.ModelDir,
	}
}

// OpenOrCreateIndex opens the Bleve index at indexPath, creating it with
// the default mapping when absent.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	idx, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new search index at %s", indexPath)
		return bleve.New(indexPath, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, err
	}
	log.Debugf("Opened search index at %s", indexPath)
	return idx, nil
}

// IndexItem adds or replaces item.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.ID, item)
}

// SearchIndex runs a query-string search and asks for every stored field.
func SearchIndex(idx bleve.Index, query string, limit int) (*bleve.SearchResult, error) {
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	req.Fields = []string{"*"}
	if limit > 0 {
		req.Size = limit
	}
	return idx.Search(req)
}
