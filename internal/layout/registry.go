package layout

import (
	"fmt"
	"sort"
	"strings"

	"civitdl/internal/errs"
	"civitdl/internal/models"
)

// Registry holds the sorters selectable by name.
type Registry struct {
	sorters map[string]Sorter
}

// NewRegistry returns a registry with the built-in sorters plus one
// template sorter per config entry.
func NewRegistry(configured []models.SorterConfig) (*Registry, error) {
	r := &Registry{sorters: map[string]Sorter{
		BasicName: Basic(),
		TagsName:  Tags(),
	}}
	for _, cfg := range configured {
		s, err := NewTemplateSorter(cfg)
		if err != nil {
			return nil, errs.Inputf("Invalid sorter in config").Wrap(err)
		}
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds s. Built-in names cannot be replaced and names are unique.
func (r *Registry) Register(s Sorter) error {
	name := strings.ToLower(s.Name())
	if name == BasicName || name == TagsName {
		return errs.Inputf("Sorter name %q is reserved", s.Name())
	}
	if _, exists := r.sorters[name]; exists {
		return errs.Inputf("Sorter %q is defined more than once", s.Name())
	}
	r.sorters[name] = s
	return nil
}

// Get looks a sorter up by case-insensitive name. Empty means basic.
func (r *Registry) Get(name string) (Sorter, error) {
	if name == "" {
		name = BasicName
	}
	s, ok := r.sorters[strings.ToLower(name)]
	if !ok {
		return nil, errs.Inputf("Unknown sorter %q", name).
			WithHint(fmt.Sprintf("Available sorters: %s", strings.Join(r.Names(), ", ")))
	}
	return s, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sorters))
	for name := range r.sorters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the sorters ordered by name.
func (r *Registry) List() []Sorter {
	var out []Sorter
	for _, name := range r.Names() {
		out = append(out, r.sorters[name])
	}
	return out
}
