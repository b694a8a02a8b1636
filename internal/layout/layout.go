// Package layout decides where each downloaded piece of a model goes.
//
// A Sorter maps a model, a version and the artifact's filename stem to
// exactly four directories: model, metadata, images, prompts. Apply enforces
// that contract before anything is written to disk.
package layout

import (
	"errors"
	"path/filepath"
	"strings"

	"civitdl/internal/errs"
	"civitdl/internal/models"
)

// PathCount is the number of directories every layout must return.
const PathCount = 4

type Sorter interface {
	Name() string
	Description() string
	// ComputeLayout returns [modelDir, metadataDir, imageDir, promptDir].
	ComputeLayout(model *models.Model, version *models.ModelVersion, stem, root string) ([]string, error)
}

// Apply runs s and validates its result.
func Apply(s Sorter, model *models.Model, version *models.ModelVersion, stem, root string) (models.DestinationPaths, error) {
	paths, err := s.ComputeLayout(model, version, stem, root)
	if err != nil {
		var typed *errs.Error
		if errors.As(err, &typed) {
			return models.DestinationPaths{}, err
		}
		return models.DestinationPaths{}, errs.Inputf("Sorter %q failed", s.Name()).Wrap(err)
	}
	if len(paths) != PathCount {
		return models.DestinationPaths{}, errs.Inputf("Sorter %q returned %d paths, expected %d (model, metadata, image, prompt)", s.Name(), len(paths), PathCount)
	}
	for i, p := range paths {
		if strings.TrimSpace(p) == "" {
			return models.DestinationPaths{}, errs.Inputf("Sorter %q returned an empty path at position %d", s.Name(), i+1)
		}
		paths[i] = filepath.Clean(p)
	}
	return models.DestinationPaths{
		ModelDir:    paths[0],
		MetadataDir: paths[1],
		ImageDir:    paths[2],
		PromptDir:   paths[3],
	}, nil
}
