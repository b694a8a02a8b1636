// Package metadata turns a parsed reference into the model and version
// records needed to download it.
package metadata

import (
	"context"
	"fmt"
	"strconv"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
)

// Fetcher is the subset of the API client the resolver needs.
type Fetcher interface {
	GetModel(ctx context.Context, modelID string) (*models.Model, error)
	GetModelVersion(ctx context.Context, versionID string) (*models.ModelVersion, error)
}

type Resolver struct {
	fetcher Fetcher
}

func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Resolve fetches the records for ref. Which endpoints are hit depends on
// what the reference names:
//
//	site url with version  -> model + version
//	numeric id, site url   -> model, first listed version
//	api url                -> version, then its model
func (r *Resolver) Resolve(ctx context.Context, ref models.SourceRef) (*models.ResolvedMetadata, error) {
	var (
		model   *models.Model
		version *models.ModelVersion
		err     error
	)

	switch {
	case ref.Kind == models.KindSite && len(ref.Tokens) == 2:
		model, version, err = r.modelAndVersion(ctx, ref.Tokens[0], ref.Tokens[1])
	case ref.Kind == models.KindID && len(ref.Tokens) == 1,
		ref.Kind == models.KindSite && len(ref.Tokens) == 1:
		model, version, err = r.modelLatest(ctx, ref.Tokens[0])
	case ref.Kind == models.KindAPI && len(ref.Tokens) == 1:
		model, version, err = r.versionFirst(ctx, ref.Tokens[0])
	default:
		return nil, errs.Unexpectedf(nil, "cannot resolve %s reference with %d ids: %s", ref.Kind, len(ref.Tokens), ref.Original)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading metadata for %q: %w", ref.Original, err)
	}

	meta := &models.ResolvedMetadata{
		ModelID:     idString(model.ID),
		VersionID:   idString(version.ID),
		Model:       model,
		Version:     version,
		DownloadURL: version.DownloadUrl,
		Images:      version.Images,
		Nsfw:        model.Nsfw,
		Name:        model.Name,
	}
	if err := meta.Validate(); err != nil {
		return nil, errs.Unexpectedf(err, "metadata for %q", ref.Original)
	}
	if meta.DownloadURL == "" {
		return nil, errs.Resourcesf("No download url found for model %s version %s", meta.ModelID, meta.VersionID)
	}

	log.WithFields(log.Fields{
		"modelId":   meta.ModelID,
		"versionId": meta.VersionID,
		"images":    len(meta.Images),
	}).Debugf("Resolved %q to %s", ref.Original, meta.Name)
	return meta, nil
}

func (r *Resolver) modelAndVersion(ctx context.Context, modelID, versionID string) (*models.Model, *models.ModelVersion, error) {
	model, err := r.fetcher.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	version, err := r.fetcher.GetModelVersion(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}
	if version.ModelId != 0 && idString(version.ModelId) != modelID {
		return nil, nil, errs.Inputf("Version %s belongs to model %d, not model %s", versionID, version.ModelId, modelID)
	}
	return model, version, nil
}

func (r *Resolver) modelLatest(ctx context.Context, modelID string) (*models.Model, *models.ModelVersion, error) {
	model, err := r.fetcher.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if len(model.ModelVersions) == 0 {
		return nil, nil, errs.Resourcesf("No model versions found from model id, %s", modelID)
	}
	// The API lists versions newest first; that order is kept as is.
	version := model.ModelVersions[0]
	return model, &version, nil
}

func (r *Resolver) versionFirst(ctx context.Context, versionID string) (*models.Model, *models.ModelVersion, error) {
	version, err := r.fetcher.GetModelVersion(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}
	if version.ModelId == 0 {
		return nil, nil, errs.Unexpectedf(nil, "version %s does not name its model", versionID)
	}
	model, err := r.fetcher.GetModel(ctx, idString(version.ModelId))
	if err != nil {
		return nil, nil, err
	}
	return model, version, nil
}

func idString(id int) string {
	if id <= 0 {
		return ""
	}
	return strconv.Itoa(id)
}
