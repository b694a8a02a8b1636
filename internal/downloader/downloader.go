package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/models"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
)

var ErrHashMismatch = errors.New("downloaded file hash mismatch")

// Options tunes a Downloader.
type Options struct {
	// LimitRate caps artifact throughput in bytes per second. 0 is unlimited.
	LimitRate int64
	// VerifyHashes checks the finished artifact against the hashes the API
	// lists for it.
	VerifyHashes bool
	// Progress receives progress bars and image status lines. nil hides them.
	Progress io.Writer
}

// Downloader streams model artifacts and their side files to disk.
type Downloader struct {
	client *http.Client
	apiKey string
	opts   Options
}

func NewDownloader(client *http.Client, apiKey string, opts Options) *Downloader {
	if client == nil {
		// No overall timeout, artifacts can take hours.
		client = &http.Client{Transport: http.DefaultTransport}
	}
	return &Downloader{client: client, apiKey: apiKey, opts: opts}
}

// Artifact is an opened download whose body has not been consumed yet.
type Artifact struct {
	Filename      string
	Stem          string
	Ext           string
	ContentLength int64
	URL           string

	body io.ReadCloser
}

func (a *Artifact) Close() error {
	if a.body == nil {
		return nil
	}
	return a.body.Close()
}

// OpenArtifact requests the artifact and resolves its filename from the
// response headers. The caller must Save or Close the result.
func (d *Downloader) OpenArtifact(ctx context.Context, meta *models.ResolvedMetadata, original string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
	if err != nil {
		return nil, errs.Unexpectedf(err, "creating download request for %s", meta.DownloadURL)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	log.Debugf("Requesting artifact for %s from %s", original, meta.DownloadURL)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errs.APIf(0, meta.DownloadURL, "Download request failed for %q", original).Wrap(err)
	}

	if err := CheckAuthRequired(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errs.APIf(resp.StatusCode, meta.DownloadURL, "Downloading model from CivitAI failed for %q", original)
	}

	name, err := ResolveFilename(resp.Header, meta.Version, meta.VersionID, original)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	ext := filepath.Ext(name)
	log.Debugf("Resolved artifact filename %q (%s)", name, helpers.BytesToSize(uint64(max(resp.ContentLength, 0))))
	return &Artifact{
		Filename:      name,
		Stem:          strings.TrimSuffix(name, ext),
		Ext:           ext,
		ContentLength: resp.ContentLength,
		URL:           meta.DownloadURL,
		body:          resp.Body,
	}, nil
}

// ArtifactFilename is the on-disk name of a model file.
func ArtifactFilename(stem, ext string, meta *models.ResolvedMetadata) string {
	return fmt.Sprintf("%s-mid_%s-vid_%s%s", stem, meta.ModelID, meta.VersionID, ext)
}

// SaveArtifact streams a into dir through a temporary file, verifies it and
// renames it into place. It always closes a. Returns the final path.
func (d *Downloader) SaveArtifact(ctx context.Context, a *Artifact, dir string, meta *models.ResolvedMetadata) (string, error) {
	defer a.Close()

	if !helpers.CheckAndMakeDir(dir) {
		return "", errs.Unexpectedf(nil, "Failed to create model directory %s", dir)
	}
	finalPath := filepath.Join(dir, ArtifactFilename(a.Stem, a.Ext, meta))
	hashes, verify := d.expectedHashes(meta.Version, a.Filename)

	// A verified copy from an earlier run is kept as is.
	if verify {
		if _, err := os.Stat(finalPath); err == nil && helpers.CheckHash(finalPath, hashes) {
			log.Infof("Found verified existing file %s, skipping download", finalPath)
			return finalPath, nil
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(finalPath)+".*.tmp")
	if err != nil {
		return "", errs.Unexpectedf(err, "creating temporary file in %s", dir)
	}
	keepTemp := false
	defer func() {
		if !keepTemp {
			tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
				log.WithError(rmErr).Warnf("Failed to remove temporary file %s", tmp.Name())
			}
		}
	}()

	bar := d.newBar(a.ContentLength, "Model", true)
	body := &readRecorder{r: a.body}
	start := time.Now()
	n, err := ThrottledCopy(ctx, io.MultiWriter(tmp, bar), body, d.opts.LimitRate)
	bar.Finish()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case body.err != nil:
			return "", errs.APIf(0, a.URL, "Download interrupted after %s", helpers.BytesToSize(uint64(n))).Wrap(err)
		default:
			return "", errs.Unexpectedf(err, "writing %s", tmp.Name())
		}
	}
	if a.ContentLength > 0 && n != a.ContentLength {
		return "", errs.APIf(0, a.URL, "Incomplete download: got %d of %d bytes", n, a.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return "", errs.Unexpectedf(err, "closing %s", tmp.Name())
	}
	log.Debugf("Wrote %s in %s", helpers.BytesToSize(uint64(n)), time.Since(start).Round(time.Millisecond))

	if verify {
		if !helpers.CheckHash(tmp.Name(), hashes) {
			return "", errs.Unexpectedf(ErrHashMismatch, "Hash check failed for %s", a.Filename).
				WithHint("The file may have been corrupted in transit. Retry the download.")
		}
		log.Debugf("Hash verified for %s", a.Filename)
	}

	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", errs.Unexpectedf(err, "renaming %s to %s", tmp.Name(), finalPath)
	}
	keepTemp = true
	log.Infof("Saved model file %s", finalPath)
	return finalPath, nil
}

// expectedHashes finds the listed file matching filename.
func (d *Downloader) expectedHashes(version *models.ModelVersion, filename string) (models.Hashes, bool) {
	if !d.opts.VerifyHashes || version == nil {
		return models.Hashes{}, false
	}
	for _, f := range version.Files {
		if f.Name == filename && helpers.HasHashes(f.Hashes) {
			return f.Hashes, true
		}
	}
	return models.Hashes{}, false
}

func (d *Downloader) progressOut() io.Writer {
	if d.opts.Progress == nil {
		return io.Discard
	}
	return d.opts.Progress
}

func (d *Downloader) newBar(total int64, description string, bytes bool) *progressbar.ProgressBar {
	out := d.progressOut()
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	}
	if bytes {
		opts = append(opts,
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	} else {
		opts = append(opts, progressbar.OptionShowCount())
	}
	return progressbar.NewOptions64(total, opts...)
}

// readRecorder remembers the last read error so network failures can be
// told apart from disk failures.
type readRecorder struct {
	r   io.Reader
	err error
}

func (r *readRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}
