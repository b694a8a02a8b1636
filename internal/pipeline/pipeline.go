// Package pipeline drives one model reference through metadata resolution,
// layout, and the downloads, and records the outcome.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"civitdl/index"
	"civitdl/internal/console"
	"civitdl/internal/downloader"
	"civitdl/internal/errs"
	"civitdl/internal/layout"
	"civitdl/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// Resolver turns a reference into metadata.
type Resolver interface {
	Resolve(ctx context.Context, ref models.SourceRef) (*models.ResolvedMetadata, error)
}

// Ledger remembers finished downloads.
type Ledger interface {
	GetEntry(versionID string) (models.DatabaseEntry, error)
	PutEntry(entry models.DatabaseEntry) error
}

// Deps are the collaborators of a Pipeline. Ledger and Index may be nil.
type Deps struct {
	Resolver   Resolver
	Downloader *downloader.Downloader
	Ledger     Ledger
	Index      bleve.Index
	Console    *console.Console
}

type Options struct {
	Root       string
	Sorter     layout.Sorter
	MaxImages  int
	WithPrompt bool
	RetryCount int
	PauseTime  time.Duration
	// Force downloads versions the ledger already has.
	Force bool
}

// Result describes one processed reference. Meta is set whenever
// resolution succeeded, even if a later stage failed.
type Result struct {
	Ref       models.SourceRef
	Meta      *models.ResolvedMetadata
	Paths     models.DestinationPaths
	ModelFile string
	Metadata  string
	Images    []string
	Skipped   bool
}

type Failure struct {
	Ref models.SourceRef
	Err error
}

type Summary struct {
	Succeeded []*Result
	Skipped   []*Result
	Failed    []Failure
}

func (s Summary) Total() int {
	return len(s.Succeeded) + len(s.Skipped) + len(s.Failed)
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Console == nil {
		deps.Console = console.Discard()
	}
	if opts.Sorter == nil {
		opts.Sorter = layout.Basic()
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Download makes one attempt at ref. No file is written unless the layout
// is valid.
func (p *Pipeline) Download(ctx context.Context, ref models.SourceRef) (*Result, error) {
	res := &Result{Ref: ref}

	meta, err := p.deps.Resolver.Resolve(ctx, ref)
	if err != nil {
		return res, err
	}
	res.Meta = meta

	if existing, ok := p.alreadyDownloaded(meta.VersionID); ok {
		log.Infof("Version %s already downloaded to %s", meta.VersionID, existing.FilePath)
		res.Skipped = true
		res.ModelFile = existing.FilePath
		res.Paths.ModelDir = existing.ModelDir
		return res, nil
	}

	artifact, err := p.deps.Downloader.OpenArtifact(ctx, meta, ref.Original)
	if err != nil {
		return res, err
	}
	defer artifact.Close()

	paths, err := layout.Apply(p.opts.Sorter, meta.Model, meta.Version, artifact.Stem, p.opts.Root)
	if err != nil {
		return res, err
	}
	res.Paths = paths
	log.WithFields(log.Fields{
		"model":    paths.ModelDir,
		"metadata": paths.MetadataDir,
		"images":   paths.ImageDir,
		"prompts":  paths.PromptDir,
	}).Debugf("Layout %s for %s", p.opts.Sorter.Name(), ref)

	if res.Metadata, err = downloader.WriteMetadata(paths.MetadataDir, meta); err != nil {
		return res, err
	}

	images := downloader.SelectImages(meta.Images, meta.Nsfw, p.opts.MaxImages)
	if len(images) > 0 {
		data, err := p.deps.Downloader.FetchImages(ctx, images)
		if err != nil {
			return res, err
		}
		if res.Images, err = p.deps.Downloader.WriteImages(paths.ImageDir, images, data); err != nil {
			return res, err
		}
		if p.opts.WithPrompt {
			if err := downloader.WritePrompts(paths.PromptDir, res.Images, images); err != nil {
				return res, err
			}
		}
	}

	if res.ModelFile, err = p.deps.Downloader.SaveArtifact(ctx, artifact, paths.ModelDir, meta); err != nil {
		return res, err
	}

	p.record(downloadedEntry(ref, meta, artifact.Filename, res))
	return res, nil
}

// DownloadWithRetry retries retryable failures RetryCount times, pausing
// PauseTime between attempts.
func (p *Pipeline) DownloadWithRetry(ctx context.Context, ref models.SourceRef) (*Result, error) {
	attempts := 1 + max(p.opts.RetryCount, 0)
	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err = p.Download(ctx, ref)
		if err == nil {
			return res, nil
		}
		if !errs.Retryable(err) || attempt == attempts || ctx.Err() != nil {
			break
		}
		p.deps.Console.Warnf("Retrying %q after error (attempt %d of %d): %v", ref.Original, attempt+1, attempts, err)
		if werr := wait(ctx, p.opts.PauseTime); werr != nil {
			break
		}
	}
	if res != nil && res.Meta != nil {
		p.recordFailure(ref, res.Meta, err)
	}
	return res, err
}

// Run processes refs in order, pausing between them. A failed reference
// does not stop the batch.
func (p *Pipeline) Run(ctx context.Context, refs []models.SourceRef) Summary {
	var sum Summary
	for i, ref := range refs {
		if i > 0 {
			if err := wait(ctx, p.opts.PauseTime); err != nil {
				sum.Failed = append(sum.Failed, Failure{Ref: ref, Err: err})
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			sum.Failed = append(sum.Failed, Failure{Ref: ref, Err: err})
			continue
		}

		p.deps.Console.Infof("Now downloading %q...", ref.Original)
		res, err := p.DownloadWithRetry(ctx, ref)
		switch {
		case err != nil:
			p.deps.Console.Failuref("Failed to download %q: %v", ref.Original, err)
			sum.Failed = append(sum.Failed, Failure{Ref: ref, Err: err})
		case res.Skipped:
			p.deps.Console.Warnf("Skipped %q, already downloaded to %s (use --force to download again)", ref.Original, res.ModelFile)
			sum.Skipped = append(sum.Skipped, res)
		default:
			p.deps.Console.Successf("Download completed for %q: %s", ref.Original, res.ModelFile)
			sum.Succeeded = append(sum.Succeeded, res)
		}
	}
	return sum
}

func (p *Pipeline) alreadyDownloaded(versionID string) (models.DatabaseEntry, bool) {
	if p.deps.Ledger == nil || p.opts.Force {
		return models.DatabaseEntry{}, false
	}
	entry, err := p.deps.Ledger.GetEntry(versionID)
	if err != nil {
		return entry, false
	}
	if entry.Status != models.StatusDownloaded || entry.FilePath == "" {
		return entry, false
	}
	if _, err := os.Stat(entry.FilePath); err != nil {
		log.Debugf("Ledger lists %s but the file is gone, downloading again", entry.FilePath)
		return entry, false
	}
	return entry, true
}

func downloadedEntry(ref models.SourceRef, meta *models.ResolvedMetadata, filename string, res *Result) models.DatabaseEntry {
	entry := baseEntry(ref, meta)
	entry.Filename = filename
	entry.FilePath = res.ModelFile
	entry.ModelDir = res.Paths.ModelDir
	entry.Status = models.StatusDownloaded
	for _, f := range meta.Version.Files {
		if f.Name == filename {
			entry.Hashes = f.Hashes
			break
		}
	}
	return entry
}

func baseEntry(ref models.SourceRef, meta *models.ResolvedMetadata) models.DatabaseEntry {
	return models.DatabaseEntry{
		ModelID:     meta.Model.ID,
		VersionID:   meta.Version.ID,
		ModelName:   meta.Model.Name,
		ModelType:   meta.Model.Type,
		VersionName: meta.Version.Name,
		BaseModel:   meta.Version.BaseModel,
		Creator:     meta.Model.Creator.Username,
		Tags:        meta.Model.Tags,
		Source:      ref.Original,
		Timestamp:   time.Now().Unix(),
	}
}

func (p *Pipeline) record(entry models.DatabaseEntry) {
	if p.deps.Ledger != nil {
		if err := p.deps.Ledger.PutEntry(entry); err != nil {
			log.WithError(err).Warnf("Failed to record version %d in the ledger", entry.VersionID)
		}
	}
	if p.deps.Index != nil && entry.Status == models.StatusDownloaded {
		item := index.ItemFromEntry(entry)
		item.Sorter = p.opts.Sorter.Name()
		if err := index.IndexItem(p.deps.Index, item); err != nil {
			log.WithError(err).Warnf("Failed to index version %d", entry.VersionID)
		}
	}
}

// recordFailure notes the error unless the ledger already holds a good
// download of the version.
func (p *Pipeline) recordFailure(ref models.SourceRef, meta *models.ResolvedMetadata, cause error) {
	if p.deps.Ledger == nil || meta.Model == nil || meta.Version == nil || errors.Is(cause, context.Canceled) {
		return
	}
	if prev, err := p.deps.Ledger.GetEntry(meta.VersionID); err == nil && prev.Status == models.StatusDownloaded {
		return
	}
	entry := baseEntry(ref, meta)
	entry.Status = models.StatusError
	entry.ErrorDetails = cause.Error()
	p.record(entry)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
