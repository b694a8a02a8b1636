package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type (
	Config struct {
		// Connection/Auth
		ApiKey     string `toml:"ApiKey"`
		ApiBaseUrl string `toml:"ApiBaseUrl"`

		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Batch behaviour
		Sorter     string  `toml:"Sorter"`
		MaxImages  int     `toml:"MaxImages"`
		WithPrompt bool    `toml:"WithPrompt"`
		LimitRate  string  `toml:"LimitRate"` // bytes/sec, accepts k/m/g/t suffixes
		RetryCount int     `toml:"RetryCount"`
		PauseTime  float64 `toml:"PauseTime"` // seconds

		// Downloader Behavior
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		VerifyHashes        bool `toml:"VerifyHashes"`

		// Destination aliases, e.g. "@lora" = "/models/loras"
		Aliases map[string]string `toml:"Aliases"`
		// Declarative layouts selectable by name with --sorter
		Sorters []SorterConfig `toml:"Sorters"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// SorterConfig holds one text/template per destination directory.
	SorterConfig struct {
		Name        string `toml:"Name"`
		Description string `toml:"Description"`
		ModelDir    string `toml:"ModelDir"`
		MetadataDir string `toml:"MetadataDir"`
		ImageDir    string `toml:"ImageDir"`
		PromptDir   string `toml:"PromptDir"`
	}

	Model struct {
		ID            int            `json:"id"`
		Name          string         `json:"name"`
		Description   string         `json:"description"`
		Type          string         `json:"type"`
		Poi           bool           `json:"poi"`
		Nsfw          bool           `json:"nsfw"`
		Stats         Stats          `json:"stats"`
		Creator       Creator        `json:"creator"`
		Tags          []string       `json:"tags"`
		ModelVersions []ModelVersion `json:"modelVersions"`

		// Raw is the record exactly as the API returned it.
		Raw json.RawMessage `json:"-"`
	}

	Stats struct {
		DownloadCount int     `json:"downloadCount"`
		FavoriteCount int     `json:"favoriteCount"`
		CommentCount  int     `json:"commentCount"`
		RatingCount   int     `json:"ratingCount"`
		Rating        float64 `json:"rating"`
	}

	Creator struct {
		Username string `json:"username"`
		Image    string `json:"image"`
	}

	// BaseModelInfo is the nested 'model' field of a /model-versions/{id} response.
	BaseModelInfo struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Nsfw bool   `json:"nsfw"`
		Poi  bool   `json:"poi"`
	}

	ModelVersion struct {
		ID           int           `json:"id"`
		ModelId      int           `json:"modelId"`
		Name         string        `json:"name"`
		PublishedAt  string        `json:"publishedAt"`
		TrainedWords []string      `json:"trainedWords"`
		BaseModel    string        `json:"baseModel"`
		Description  string        `json:"description"`
		Stats        Stats         `json:"stats"`
		Files        []File        `json:"files"`
		Images       []ModelImage  `json:"images"`
		DownloadUrl  string        `json:"downloadUrl"`
		Model        BaseModelInfo `json:"model"`
	}

	File struct {
		Name        string   `json:"name"`
		ID          int      `json:"id"`
		SizeKB      float64  `json:"sizeKB"`
		Type        string   `json:"type"`
		Metadata    Metadata `json:"metadata"`
		Hashes      Hashes   `json:"hashes"`
		DownloadUrl string   `json:"downloadUrl"`
		Primary     bool     `json:"primary"`
	}

	Metadata struct {
		Fp     string `json:"fp"`
		Size   string `json:"size"`
		Format string `json:"format"`
	}

	Hashes struct {
		AutoV2 string `json:"AutoV2"`
		SHA256 string `json:"SHA256"`
		CRC32  string `json:"CRC32"`
		BLAKE3 string `json:"BLAKE3"`
	}

	ModelImage struct {
		ID     int      `json:"id"`
		URL    string   `json:"url"`
		Width  int      `json:"width"`
		Height int      `json:"height"`
		Nsfw   NsfwFlag `json:"nsfw"`

		// Raw is the full descriptor, written out as the image's prompt file.
		Raw json.RawMessage `json:"-"`
	}

	// Internal ledger entry for each processed model version
	DatabaseEntry struct {
		ModelID      int      `json:"modelId"`
		VersionID    int      `json:"versionId"`
		ModelName    string   `json:"modelName"`
		ModelType    string   `json:"modelType"`
		VersionName  string   `json:"versionName"`
		BaseModel    string   `json:"baseModel"`
		Creator      string   `json:"creator"`
		Tags         []string `json:"tags,omitempty"`
		Source       string   `json:"source"`
		Filename     string   `json:"filename"`
		FilePath     string   `json:"filePath"`
		ModelDir     string   `json:"modelDir"`
		Hashes       Hashes   `json:"hashes"`
		Timestamp    int64    `json:"timestamp"`
		Status       string   `json:"status"`
		ErrorDetails string   `json:"errorDetails,omitempty"`
	}
)

// Database Status Constants
const (
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

// UnmarshalJSON keeps a copy of the raw record next to the decoded fields.
func (m *Model) UnmarshalJSON(data []byte) error {
	type plain Model
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Model(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (img *ModelImage) UnmarshalJSON(data []byte) error {
	type plain ModelImage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*img = ModelImage(p)
	img.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// NsfwFlag decodes the image nsfw field, which the API has sent as a bool,
// as a level string ("None", "Soft", "Mature", "X") and as a number.
// Only false, "None", "", 0 and null count as safe.
type NsfwFlag bool

func (f *NsfwFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	case bytes.Equal(data, []byte("false")):
		*f = false
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		*f = NsfwFlag(s != "" && !strings.EqualFold(s, "none") && !strings.EqualFold(s, "false"))
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid nsfw value %s", data)
		}
		*f = n != 0
	}
	return nil
}
