package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"civitdl/internal/api"
	"civitdl/internal/config"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile        string
	logLevel       string
	logFormat      string
	verbose        bool
	noColor        bool
	logApiFlag     bool
	savePathFlag   string
	apiTimeoutFlag int
)

// globalConfig is loaded once by PersistentPreRunE.
var globalConfig models.Config

// globalHttpTransport is a clone of http.DefaultTransport with header
// timeouts, wrapped in an api.LoggingTransport when API logging is on.
var globalHttpTransport http.RoundTripper = http.DefaultTransport

var rootCmd = &cobra.Command{
	Use:   "civitdl",
	Short: "Download models from Civitai together with their metadata and example images",
	Long: `civitdl fetches models from civitai.com by id, site url, api url, or
batch file. Model files, the model record, example images and their prompts
are written into a directory tree chosen by a sorter.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	closeTransport()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", config.DefaultConfigPath, "Configuration file path")
	flags.StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	flags.StringVar(&savePathFlag, "save-path", "", "Default destination directory (overrides config)")
	flags.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API requests in seconds (overrides config, -1 uses config)")
}

// initLogging configures logrus from the persistent flags.
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig loads the config file, applies the persistent flag
// overrides and sets up the shared HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	globalConfig = cfg

	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
	}
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
		} else {
			log.Warnf("--api-timeout must be positive, keeping %d sec", globalConfig.ApiClientTimeoutSec)
		}
	}
	if globalConfig.ApiClientTimeoutSec <= 0 {
		globalConfig.ApiClientTimeoutSec = 60
	}

	initViper(globalConfig)
	setupTransport()
	return nil
}

// initViper makes config values the defaults beneath flags and the
// CIVITDL_* environment.
func initViper(cfg models.Config) {
	viper.SetEnvPrefix("CIVITDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("download.sorter", cfg.Sorter)
	viper.SetDefault("download.max_images", cfg.MaxImages)
	viper.SetDefault("download.with_prompt", cfg.WithPrompt)
	viper.SetDefault("download.limit_rate", cfg.LimitRate)
	viper.SetDefault("download.retry_count", cfg.RetryCount)
	viper.SetDefault("download.pause_time", cfg.PauseTime)
	viper.SetDefault("download.api_key", cfg.ApiKey)
	viper.SetDefault("download.verify_hashes", cfg.VerifyHashes)
}

func setupTransport() {
	closeTransport()
	base := newBaseTransport(time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second)
	globalHttpTransport = base
	if !globalConfig.LogApiRequests {
		return
	}
	logFilePath := api.LogFileName
	if globalConfig.SavePath != "" {
		if _, err := os.Stat(globalConfig.SavePath); err == nil {
			logFilePath = filepath.Join(globalConfig.SavePath, api.LogFileName)
		} else {
			log.Warnf("SavePath '%s' not found, saving %s to current directory.", globalConfig.SavePath, api.LogFileName)
		}
	}
	lt, err := api.NewLoggingTransport(base, logFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return
	}
	log.Infof("API logging to file: %s", logFilePath)
	globalHttpTransport = lt
}

// newBaseTransport bounds connection setup and the wait for response
// headers, but not the body.
func newBaseTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

func closeTransport() {
	if lt, ok := globalHttpTransport.(*api.LoggingTransport); ok {
		if err := lt.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
		globalHttpTransport = http.DefaultTransport
	}
}

// apiHTTPClient bounds metadata requests by the configured timeout.
func apiHTTPClient() *http.Client {
	return &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
	}
}

// downloadHTTPClient has no overall timeout since artifacts can be many
// gigabytes.
func downloadHTTPClient() *http.Client {
	return &http.Client{Transport: globalHttpTransport}
}
