package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/models"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
)

// ImageWorkers bounds concurrent image fetches.
const ImageWorkers = 16

// SelectImages keeps images in API order, skipping NSFW ones for a
// non-NSFW model, and stops after limit.
func SelectImages(images []models.ModelImage, modelNsfw bool, limit int) []models.ModelImage {
	var selected []models.ModelImage
	for _, img := range images {
		if len(selected) >= limit {
			break
		}
		if !modelNsfw && bool(img.Nsfw) {
			continue
		}
		selected = append(selected, img)
	}
	return selected
}

// ImageFilename is the basename of the image URL's path.
func ImageFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return safeBase(u.Path)
	}
	return safeBase(rawURL)
}

// FetchImages downloads every image body concurrently. Results line up with
// images by index. The first failure stops new fetches and is returned once
// in-flight ones finish.
func (d *Downloader) FetchImages(ctx context.Context, images []models.ModelImage) ([][]byte, error) {
	results := make([][]byte, len(images))
	if len(images) == 0 {
		return results, nil
	}

	var status *uilive.Writer
	if d.opts.Progress != nil {
		status = uilive.New()
		status.Out = d.opts.Progress
		status.Start()
		defer status.Stop()
	}

	var (
		mu       sync.Mutex
		firstErr error
		done     int
		wg       sync.WaitGroup
	)
	jobs := make(chan int)
	workers := min(ImageWorkers, len(images))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				data, err := d.fetchImage(ctx, images[i].URL)

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					results[i] = data
					done++
					if status != nil {
						fmt.Fprintf(status, "Fetched %d/%d images\n", done, len(images))
					}
				}
				mu.Unlock()
			}
		}()
	}

	for i := range images {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed || ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Downloader) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errs.Unexpectedf(err, "creating image request for %s", imageURL)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errs.APIf(0, imageURL, "Image request failed").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.APIf(resp.StatusCode, imageURL, "Downloading image failed")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.APIf(0, imageURL, "Reading image body failed").Wrap(err)
	}
	log.Debugf("Fetched image %s (%s)", imageURL, helpers.BytesToSize(uint64(len(data))))
	return data, nil
}

// WriteImages stores data[i] under the basename of images[i].URL and
// returns the basenames in order.
func (d *Downloader) WriteImages(dir string, images []models.ModelImage, data [][]byte) ([]string, error) {
	if len(images) != len(data) {
		return nil, errs.Unexpectedf(nil, "got %d image bodies for %d images", len(data), len(images))
	}
	if len(images) == 0 {
		return nil, nil
	}
	if !helpers.CheckAndMakeDir(dir) {
		return nil, errs.Unexpectedf(nil, "Failed to create image directory %s", dir)
	}

	bar := d.newBar(int64(len(images)), "Images", false)
	defer bar.Finish()

	names := make([]string, len(images))
	for i, img := range images {
		name := ImageFilename(img.URL)
		if name == "" {
			name = fmt.Sprintf("image-%d", img.ID)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data[i], 0644); err != nil {
			return nil, errs.Unexpectedf(err, "writing image %s", name)
		}
		names[i] = name
		bar.Add(1)
	}
	return names, nil
}

// WritePrompts writes each image descriptor next to a name derived from the
// saved image's basename.
func WritePrompts(dir string, basenames []string, images []models.ModelImage) error {
	if len(basenames) != len(images) {
		return errs.Unexpectedf(nil, "got %d image names for %d images", len(basenames), len(images))
	}
	if len(images) == 0 {
		return nil
	}
	if !helpers.CheckAndMakeDir(dir) {
		return errs.Unexpectedf(nil, "Failed to create prompt directory %s", dir)
	}
	for i, img := range images {
		stem := strings.TrimSuffix(basenames[i], path.Ext(basenames[i]))
		content, err := indentJSON(img.Raw, img)
		if err != nil {
			return errs.Unexpectedf(err, "encoding prompt for image %d", img.ID)
		}
		if err := os.WriteFile(filepath.Join(dir, stem+"-prompt.json"), content, 0644); err != nil {
			return errs.Unexpectedf(err, "writing prompt for %s", basenames[i])
		}
	}
	return nil
}

// indentJSON pretty-prints raw as received, or marshals fallback when the
// raw bytes were never captured.
func indentJSON(raw json.RawMessage, fallback any) ([]byte, error) {
	if len(raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			return buf.Bytes(), nil
		}
	}
	return json.MarshalIndent(fallback, "", "  ")
}
