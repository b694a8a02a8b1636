package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"civitdl/index"
	"civitdl/internal/api"
	"civitdl/internal/config"
	"civitdl/internal/console"
	"civitdl/internal/database"
	"civitdl/internal/downloader"
	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/layout"
	"civitdl/internal/metadata"
	"civitdl/internal/pipeline"
	"civitdl/internal/source"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var downloadCmd = &cobra.Command{
	Use:     "download <reference>... [destination]",
	Aliases: []string{"dl"},
	Short:   "Download models by id, url, or batch file",
	Long: `Downloads each reference into the destination directory. A reference is a
model id, a civitai.com/models url (optionally with ?modelVersionId=), a
civitai.com/api/download/models url, a comma-separated list of those, or a
path to a batch file holding any of them.

With two or more arguments the last one is the destination. It may start with
an alias from the config file, e.g. @lora/anime. With a single argument the
destination is SavePath.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringP("sorter", "s", layout.BasicName, "Layout used to place files (see 'civitdl sorter list')")
	f.IntP("max-images", "i", 3, "Maximum number of example images per model")
	f.Bool("with-prompt", true, "Write each image's generation data next to it")
	f.String("limit-rate", "0", "Limit model download speed in bytes/sec, accepts k, m, g, t suffixes. 0 is unlimited")
	f.Int("retry-count", 3, "Retries for a reference after a network or API error")
	f.Float64("pause-time", 3, "Seconds to wait between references and between retries")
	f.String("api-key", "", "Civitai API key for models that need authentication")
	f.Bool("verify-hashes", true, "Check downloaded model files against the hashes Civitai lists")
	f.Bool("force", false, "Download versions the ledger already records")
	f.Bool("no-progress", false, "Hide progress bars")

	viper.BindPFlag("download.sorter", f.Lookup("sorter"))
	viper.BindPFlag("download.max_images", f.Lookup("max-images"))
	viper.BindPFlag("download.with_prompt", f.Lookup("with-prompt"))
	viper.BindPFlag("download.limit_rate", f.Lookup("limit-rate"))
	viper.BindPFlag("download.retry_count", f.Lookup("retry-count"))
	viper.BindPFlag("download.pause_time", f.Lookup("pause-time"))
	viper.BindPFlag("download.api_key", f.Lookup("api-key"))
	viper.BindPFlag("download.verify_hashes", f.Lookup("verify-hashes"))
}

func runDownload(cmd *cobra.Command, args []string) error {
	refArgs, dstArg := args, ""
	if len(args) > 1 {
		refArgs, dstArg = args[:len(args)-1], args[len(args)-1]
	}
	root, err := config.ResolveDestination(globalConfig, dstArg)
	if err != nil {
		return err
	}
	refs, err := source.Parse(refArgs)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return errs.Inputf("No model references given")
	}

	limitRate, err := helpers.ParseBytes(viper.GetString("download.limit_rate"), "limit-rate")
	if err != nil {
		return err
	}
	maxImages := viper.GetInt("download.max_images")
	retryCount := viper.GetInt("download.retry_count")
	pauseTime := viper.GetFloat64("download.pause_time")
	switch {
	case maxImages < 0:
		return errs.Inputf("--max-images must not be negative")
	case retryCount < 0:
		return errs.Inputf("--retry-count must not be negative")
	case pauseTime < 0:
		return errs.Inputf("--pause-time must not be negative")
	}

	registry, err := layout.NewRegistry(globalConfig.Sorters)
	if err != nil {
		return err
	}
	sorter, err := registry.Get(viper.GetString("download.sorter"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var progress io.Writer = cmd.ErrOrStderr()
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		progress = nil
	}

	apiKey := viper.GetString("download.api_key")
	client := api.NewClient(apiKey, apiHTTPClient(), globalConfig.ApiBaseUrl)
	dl := downloader.NewDownloader(downloadHTTPClient(), apiKey, downloader.Options{
		LimitRate:    limitRate,
		VerifyHashes: viper.GetBool("download.verify_hashes"),
		Progress:     progress,
	})

	deps := pipeline.Deps{
		Resolver:   metadata.NewResolver(client),
		Downloader: dl,
		Console:    console.New(out, !noColor),
	}
	if db := openLedger(); db != nil {
		defer db.Close()
		deps.Ledger = db
	}
	if idx := openIndex(); idx != nil {
		defer idx.Close()
		deps.Index = idx
	}

	force, _ := cmd.Flags().GetBool("force")
	p := pipeline.New(deps, pipeline.Options{
		Root:       root,
		Sorter:     sorter,
		MaxImages:  maxImages,
		WithPrompt: viper.GetBool("download.with_prompt"),
		RetryCount: retryCount,
		PauseTime:  time.Duration(pauseTime * float64(time.Second)),
		Force:      force,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Debugf("Downloading %d reference(s) into %s with sorter %s", len(refs), root, sorter.Name())
	sum := p.Run(ctx, refs)

	deps.Console.Infof("Finished: %d downloaded, %d skipped, %d failed", len(sum.Succeeded), len(sum.Skipped), len(sum.Failed))
	if len(sum.Failed) > 0 {
		for _, f := range sum.Failed {
			deps.Console.Failuref("  %s: %v", f.Ref.Original, f.Err)
		}
		return fmt.Errorf("%d of %d downloads failed", len(sum.Failed), sum.Total())
	}
	return nil
}

// openLedger opens the bitcask ledger. A ledger that cannot be opened only
// disables skip detection.
func openLedger() *database.DB {
	if globalConfig.DatabasePath == "" {
		return nil
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Warnf("Download ledger unavailable at %s, continuing without it", globalConfig.DatabasePath)
		return nil
	}
	return db
}

func openIndex() bleve.Index {
	if globalConfig.BleveIndexPath == "" {
		return nil
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Warnf("Search index unavailable at %s, continuing without it", globalConfig.BleveIndexPath)
		return nil
	}
	return idx
}
