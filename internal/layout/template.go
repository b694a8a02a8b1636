package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"civitdl/internal/helpers"
	"civitdl/internal/models"
)

// TemplateData is what a configured layout template can reference.
type TemplateData struct {
	Model     *models.Model
	Version   *models.ModelVersion
	Stem      string
	Root      string
	ModelID   string
	VersionID string
}

var templateFuncs = template.FuncMap{
	"sanitize": SanitizeDirName,
	"slug":     helpers.ConvertToSlug,
	"lower":    strings.ToLower,
	"join":     func(elem ...string) string { return filepath.Join(elem...) },
	"first": func(items []string) string {
		if len(items) == 0 {
			return ""
		}
		return items[0]
	},
}

// TemplateSorter renders each directory from a text/template taken from
// the config file. Relative results are placed under the layout root.
type TemplateSorter struct {
	name        string
	description string
	templates   [PathCount]*template.Template
}

func NewTemplateSorter(cfg models.SorterConfig) (*TemplateSorter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("sorter config is missing a Name")
	}
	s := &TemplateSorter{name: cfg.Name, description: cfg.Description}
	sources := [PathCount]struct{ field, text string }{
		{"ModelDir", cfg.ModelDir},
		{"MetadataDir", cfg.MetadataDir},
		{"ImageDir", cfg.ImageDir},
		{"PromptDir", cfg.PromptDir},
	}
	for i, src := range sources {
		if strings.TrimSpace(src.text) == "" {
			return nil, fmt.Errorf("sorter %q: %s template is empty", cfg.Name, src.field)
		}
		tmpl, err := template.New(cfg.Name + "." + src.field).
			Option("missingkey=error").
			Funcs(templateFuncs).
			Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("sorter %q: parsing %s: %w", cfg.Name, src.field, err)
		}
		s.templates[i] = tmpl
	}
	if s.description == "" {
		s.description = "template layout from config"
	}
	return s, nil
}

func (s *TemplateSorter) Name() string        { return s.name }
func (s *TemplateSorter) Description() string { return s.description }

func (s *TemplateSorter) ComputeLayout(model *models.Model, version *models.ModelVersion, stem, root string) ([]string, error) {
	data := TemplateData{
		Model:     model,
		Version:   version,
		Stem:      stem,
		Root:      root,
		ModelID:   strconv.Itoa(model.ID),
		VersionID: strconv.Itoa(version.ID),
	}
	paths := make([]string, 0, PathCount)
	for _, tmpl := range s.templates {
		var b strings.Builder
		if err := tmpl.Execute(&b, data); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", tmpl.Name(), err)
		}
		p := strings.TrimSpace(b.String())
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
