package layout

import (
	"fmt"
	"path/filepath"
	"strings"

	"civitdl/internal/models"
)

const (
	BasicName = "basic"
	TagsName  = "tags"
)

type basicSorter struct{}

// Basic nests every download under the model's name.
func Basic() Sorter { return basicSorter{} }

func (basicSorter) Name() string { return BasicName }

func (basicSorter) Description() string {
	return "root/<model name>/<file>-mid_<model id>-vid_<version id>, extras in extra_data-vid_<version id>"
}

func (basicSorter) ComputeLayout(model *models.Model, version *models.ModelVersion, stem, root string) ([]string, error) {
	return nestedLayout(filepath.Join(root, modelDirName(model)), model, version, stem), nil
}

type tagsSorter struct{}

// Tags adds the model's first tag as a category level above the model name.
func Tags() Sorter { return tagsSorter{} }

func (tagsSorter) Name() string { return TagsName }

func (tagsSorter) Description() string {
	return "root/<first tag>/<model name>/..., same inner layout as basic"
}

func (tagsSorter) ComputeLayout(model *models.Model, version *models.ModelVersion, stem, root string) ([]string, error) {
	category := "uncategorized"
	for _, tag := range model.Tags {
		if name := SanitizeDirName(strings.ToLower(tag)); name != "" {
			category = name
			break
		}
	}
	return nestedLayout(filepath.Join(root, category, modelDirName(model)), model, version, stem), nil
}

func nestedLayout(parent string, model *models.Model, version *models.ModelVersion, stem string) []string {
	modelDir := filepath.Join(parent, SanitizeDirName(fmt.Sprintf("%s-mid_%d-vid_%d", stem, model.ID, version.ID)))
	extra := filepath.Join(modelDir, fmt.Sprintf("extra_data-vid_%d", version.ID))
	return []string{modelDir, extra, extra, extra}
}

func modelDirName(model *models.Model) string {
	if name := SanitizeDirName(model.Name); name != "" {
		return name
	}
	return fmt.Sprintf("model-%d", model.ID)
}
