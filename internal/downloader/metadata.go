package downloader

import (
	"fmt"
	"os"
	"path/filepath"

	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/models"
)

// MetadataFilename is the name of the model record written beside a download.
func MetadataFilename(meta *models.ResolvedMetadata) string {
	return fmt.Sprintf("model_dict-mid_%s-vid_%s.json", meta.ModelID, meta.VersionID)
}

// WriteMetadata saves the model record as the API returned it.
func WriteMetadata(dir string, meta *models.ResolvedMetadata) (string, error) {
	if !helpers.CheckAndMakeDir(dir) {
		return "", errs.Unexpectedf(nil, "Failed to create metadata directory %s", dir)
	}
	content, err := indentJSON(meta.Model.Raw, meta.Model)
	if err != nil {
		return "", errs.Unexpectedf(err, "encoding metadata for model %s", meta.ModelID)
	}
	p := filepath.Join(dir, MetadataFilename(meta))
	if err := os.WriteFile(p, content, 0644); err != nil {
		return "", errs.Unexpectedf(err, "writing %s", p)
	}
	return p, nil
}
