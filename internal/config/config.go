package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"civitdl/internal/api"
	"civitdl/internal/errs"
	"civitdl/internal/helpers"
	"civitdl/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const DefaultConfigPath = "config.toml"

// maxAliasDepth bounds alias chains such as "@lora" -> "@models/loras".
const maxAliasDepth = 8

// Defaults is the configuration used for anything the file leaves unset.
func Defaults() models.Config {
	return models.Config{
		ApiBaseUrl:          api.CivitaiApiBaseUrl,
		DatabasePath:        "civitdl.db",
		BleveIndexPath:      "civitdl.bleve",
		Sorter:              "basic",
		MaxImages:           3,
		WithPrompt:          true,
		LimitRate:           "0",
		RetryCount:          3,
		PauseTime:           3,
		ApiClientTimeoutSec: 60,
		VerifyHashes:        true,
	}
}

// LoadConfig decodes the TOML file at configFilePath over Defaults. A missing
// file is not an error.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = DefaultConfigPath
	}
	cfg := Defaults()
	md, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warnf("Config file %s not found, using defaults", configFilePath)
			return Defaults(), nil
		}
		return Defaults(), errs.Inputf("Error loading config file %s", configFilePath).Wrap(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warnf("Ignoring unknown keys in %s: %v", configFilePath, undecoded)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	log.Debugf("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

func Validate(cfg models.Config) error {
	switch {
	case cfg.MaxImages < 0:
		return errs.Inputf("MaxImages must not be negative, got %d", cfg.MaxImages)
	case cfg.RetryCount < 0:
		return errs.Inputf("RetryCount must not be negative, got %d", cfg.RetryCount)
	case cfg.PauseTime < 0:
		return errs.Inputf("PauseTime must not be negative, got %g", cfg.PauseTime)
	case cfg.ApiClientTimeoutSec < 0:
		return errs.Inputf("ApiClientTimeoutSec must not be negative, got %d", cfg.ApiClientTimeoutSec)
	}
	if _, err := helpers.ParseBytes(cfg.LimitRate, "LimitRate"); err != nil {
		return err
	}
	for alias := range cfg.Aliases {
		if alias == "" || strings.ContainsAny(alias, `/\`) {
			return errs.Inputf("Invalid alias name %q", alias)
		}
	}
	return nil
}

// ResolveDestination expands a leading alias segment and a leading ~ in dst.
// An empty dst falls back to SavePath.
func ResolveDestination(cfg models.Config, dst string) (string, error) {
	if dst == "" {
		dst = cfg.SavePath
	}
	if dst == "" {
		return "", errs.Inputf("No destination given").WithHint("Pass a destination directory or set SavePath in the config file.")
	}

	for depth := 0; ; depth++ {
		head, rest, _ := strings.Cut(filepath.ToSlash(dst), "/")
		target, ok := cfg.Aliases[head]
		if !ok {
			break
		}
		if depth == maxAliasDepth {
			return "", errs.Inputf("Alias %q expands too deeply", head)
		}
		dst = filepath.Join(target, filepath.FromSlash(rest))
	}

	expanded, err := expandHome(dst)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Unexpectedf(err, "resolving home directory for %s", p)
	}
	return filepath.Join(home, p[1:]), nil
}
