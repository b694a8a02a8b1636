package cmd

import (
	"fmt"
	"sync"
	"sync/atomic"

	"civitdl/index"
	"civitdl/internal/database"
	"civitdl/internal/errs"
	"civitdl/internal/models"
	"civitdl/internal/torrent"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type torrentJob struct {
	Entry models.DatabaseEntry
	Opts  torrent.Options
}

func torrentWorker(id int, jobs <-chan torrentJob, idx bleve.Index, wg *sync.WaitGroup, success, failure *atomic.Int64) {
	defer wg.Done()
	log.Debugf("Torrent Worker %d starting", id)
	for job := range jobs {
		fields := log.Fields{"modelID": job.Entry.ModelID, "versionID": job.Entry.VersionID, "directory": job.Entry.ModelDir}
		res, err := torrent.Generate(job.Entry.ModelDir, job.Opts)
		if err != nil {
			log.WithFields(fields).WithError(err).Errorf("Worker %d: Failed to generate torrent", id)
			failure.Add(1)
			continue
		}
		success.Add(1)
		if idx == nil || res.Skipped {
			continue
		}
		item := index.ItemFromEntry(job.Entry)
		item.TorrentPath = res.TorrentPath
		item.MagnetLink = res.MagnetLink
		if err := index.IndexItem(idx, item); err != nil {
			log.WithFields(fields).WithError(err).Warn("Failed to update search index")
		}
	}
	log.Debugf("Torrent Worker %d finished", id)
}

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for downloaded models",
	Long: `Generates BitTorrent metainfo (.torrent) files for each model directory
recorded in the download ledger. At least one tracker announce URL is required.`,
	Args: cobra.NoArgs,
	RunE: runTorrent,
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	f := torrentCmd.Flags()
	f.StringSlice("announce", nil, "Tracker announce URL (repeatable)")
	f.IntSlice("model-id", nil, "Only these model ID(s). Default: every downloaded model")
	f.StringP("output-dir", "o", "", "Directory for the .torrent files (default: inside each model directory)")
	f.BoolP("overwrite", "f", false, "Overwrite existing .torrent files")
	f.Bool("magnet-links", false, "Also write a -magnet.txt file beside each .torrent")
	f.IntP("concurrency", "c", 4, "Number of concurrent torrent workers")
}

func runTorrent(cmd *cobra.Command, args []string) error {
	fl := cmd.Flags()
	trackers, _ := fl.GetStringSlice("announce")
	if len(trackers) == 0 {
		return errs.Inputf("At least one --announce URL is required")
	}
	modelIDs, _ := fl.GetIntSlice("model-id")
	concurrency, _ := fl.GetInt("concurrency")
	if concurrency <= 0 {
		log.Warnf("Invalid concurrency value %d, defaulting to 4", concurrency)
		concurrency = 4
	}
	opts := torrent.Options{Trackers: trackers, CreatedBy: rootCmd.Name()}
	opts.OutputDir, _ = fl.GetString("output-dir")
	opts.Overwrite, _ = fl.GetBool("overwrite")
	opts.Magnet, _ = fl.GetBool("magnet-links")

	var entries []models.DatabaseEntry
	err := withLedger(func(db *database.DB) error {
		var err error
		entries, err = db.Entries()
		return err
	})
	if err != nil {
		return err
	}
	targets := torrentTargets(entries, modelIDs)
	if len(targets) == 0 {
		log.Info("No downloaded model directories to generate torrents for.")
		return nil
	}

	idx := openIndex()
	if idx != nil {
		defer idx.Close()
	}

	log.Infof("Generating torrents for %d model directories using %d workers...", len(targets), concurrency)
	jobs := make(chan torrentJob, concurrency)
	var (
		wg               sync.WaitGroup
		success, failure atomic.Int64
	)
	for i := 1; i <= concurrency; i++ {
		wg.Add(1)
		go torrentWorker(i, jobs, idx, &wg, &success, &failure)
	}
	for _, e := range targets {
		jobs <- torrentJob{Entry: e, Opts: opts}
	}
	close(jobs)
	wg.Wait()

	fmt.Fprintf(cmd.OutOrStdout(), "Torrent generation complete. Success: %d, Failed: %d\n", success.Load(), failure.Load())
	if n := failure.Load(); n > 0 {
		return fmt.Errorf("%d torrents failed to generate", n)
	}
	return nil
}

// torrentTargets keeps one downloaded entry per model directory, limited to
// modelIDs when any are given.
func torrentTargets(entries []models.DatabaseEntry, modelIDs []int) []models.DatabaseEntry {
	wanted := make(map[int]bool, len(modelIDs))
	for _, id := range modelIDs {
		wanted[id] = true
	}
	seen := make(map[string]bool)
	var out []models.DatabaseEntry
	for _, e := range entries {
		if e.Status != models.StatusDownloaded || e.ModelDir == "" {
			continue
		}
		if len(wanted) > 0 && !wanted[e.ModelID] {
			continue
		}
		if seen[e.ModelDir] {
			log.Debugf("Directory %s already queued, skipping version %d", e.ModelDir, e.VersionID)
			continue
		}
		seen[e.ModelDir] = true
		out = append(out, e)
	}
	return out
}
