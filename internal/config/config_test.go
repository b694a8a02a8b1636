package config

import (
	"os"
	"path/filepath"
	"testing"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 3, cfg.MaxImages)
	assert.True(t, cfg.WithPrompt)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
SavePath = "/models"
MaxImages = 5
WithPrompt = false
LimitRate = "2m"

[Aliases]
"@lora" = "/models/loras"

[[Sorters]]
Name = "flat"
ModelDir = "{{.Root}}"
MetadataDir = "{{.Root}}/meta"
ImageDir = "{{.Root}}/img"
PromptDir = "{{.Root}}/img"
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "/models", cfg.SavePath)
	assert.Equal(t, 5, cfg.MaxImages)
	assert.False(t, cfg.WithPrompt)
	assert.Equal(t, "2m", cfg.LimitRate)
	assert.Equal(t, 3, cfg.RetryCount)
	assert.Equal(t, "/models/loras", cfg.Aliases["@lora"])
	require.Len(t, cfg.Sorters, 1)
	assert.Equal(t, "flat", cfg.Sorters[0].Name)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":     `MaxImages = `,
		"negative":   `RetryCount = -1`,
		"limit rate": `LimitRate = "fast"`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindInput), "got %v", err)
		})
	}
}

func TestResolveDestination(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := models.Config{
		SavePath: "/default",
		Aliases: map[string]string{
			"@models": "/data/models",
			"@lora":   "@models/loras",
			"@home":   "~/stuff",
		},
	}
	tests := []struct {
		dst  string
		want string
	}{
		{"", "/default"},
		{"/plain/dir/", "/plain/dir"},
		{"@models", "/data/models"},
		{"@lora/anime", "/data/models/loras/anime"},
		{"@home", filepath.Join(home, "stuff")},
		{"~/x", filepath.Join(home, "x")},
		{"@unknown/x", "@unknown/x"},
	}
	for _, tt := range tests {
		t.Run(tt.dst, func(t *testing.T) {
			got, err := ResolveDestination(cfg, tt.dst)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestResolveDestinationErrors(t *testing.T) {
	_, err := ResolveDestination(models.Config{}, "")
	assert.True(t, errs.Is(err, errs.KindInput))

	loop := models.Config{Aliases: map[string]string{"@a": "@b", "@b": "@a"}}
	_, err = ResolveDestination(loop, "@a")
	assert.True(t, errs.Is(err, errs.KindInput))
}
