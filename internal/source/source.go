// Package source turns user-supplied strings into model references.
//
// A string may be a numeric model id, a civitai.com web URL, a civitai.com
// API URL, a comma separated list of any of these, or the path of a batch
// file containing such a list. Batch files may include other batch files;
// relative paths resolve against the directory of the including file.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrBatchCycle is wrapped when a batch file includes itself, directly or not.
var ErrBatchCycle = errors.New("batch file includes itself")

const (
	apiMarker  = "civitai.com/api"
	siteMarker = "civitai.com/models"
)

var (
	modelsIDRe  = regexp.MustCompile(`models/(\d+)`)
	versionIDRe = regexp.MustCompile(`modelVersionId=(\d+)`)
)

// Parse classifies every input and flattens inline lists and batch files
// into a single ordered list. Order follows the input, depth first.
func Parse(inputs []string) ([]models.SourceRef, error) {
	p := &parser{open: make(map[string]bool)}
	return p.parseAll(inputs, "")
}

type parser struct {
	// Canonical paths of the batch files currently being expanded.
	open map[string]bool
}

func (p *parser) parseAll(inputs []string, parent string) ([]models.SourceRef, error) {
	var refs []models.SourceRef
	for _, input := range inputs {
		parsed, err := p.parseOne(input, parent)
		if err != nil {
			return nil, err
		}
		refs = append(refs, parsed...)
	}
	return refs, nil
}

func (p *parser) parseOne(input, parent string) ([]models.SourceRef, error) {
	s := strings.TrimSpace(input)

	if isDigits(s) {
		ref, err := models.NewSourceRef(models.KindID, s, s)
		if err != nil {
			return nil, errs.Inputf("%v", err)
		}
		return []models.SourceRef{ref}, nil
	}

	if items := splitList(s); len(items) > 1 {
		return p.parseAll(items, "")
	}

	if strings.Contains(s, apiMarker) {
		m := modelsIDRe.FindStringSubmatch(s)
		if m == nil {
			return nil, badURL(s, parent)
		}
		ref, err := models.NewSourceRef(models.KindAPI, s, m[1])
		if err != nil {
			return nil, errs.Inputf("%v", err)
		}
		return []models.SourceRef{ref}, nil
	}

	if strings.Contains(s, siteMarker) {
		m := modelsIDRe.FindStringSubmatch(s)
		if m == nil {
			return nil, badURL(s, parent)
		}
		tokens := []string{m[1]}
		if v := versionIDRe.FindStringSubmatch(s); v != nil {
			tokens = append(tokens, v[1])
		}
		ref, err := models.NewSourceRef(models.KindSite, s, tokens...)
		if err != nil {
			return nil, errs.Inputf("%v", err)
		}
		return []models.SourceRef{ref}, nil
	}

	path := s
	if parent != "" && !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(parent), path)
	}
	path = filepath.Clean(path)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return p.parseBatchFile(path)
	}

	e := errs.Inputf("Bad source provided: %s", s)
	if parent != "" {
		e = e.WithHint(fmt.Sprintf("Batchfile Path: %s", parent))
	}
	return nil, e
}

func (p *parser) parseBatchFile(path string) ([]models.SourceRef, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, errs.Inputf("Unable to resolve batch file %s", path).Wrap(err)
	}
	if p.open[canonical] {
		return nil, errs.Inputf("Batch file %s is already being read", path).Wrap(ErrBatchCycle)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Inputf("Unable to read batch file %s", path).Wrap(err)
	}
	log.Debugf("Reading batch file %s", path)

	p.open[canonical] = true
	defer delete(p.open, canonical)

	return p.parseAll(splitList(string(data)), path)
}

// splitList strips newlines and returns the non-blank comma separated items.
func splitList(s string) []string {
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	var items []string
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) != "" {
			items = append(items, item)
		}
	}
	return items
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func badURL(s, parent string) *errs.Error {
	if parent != "" {
		return errs.Inputf("Incorrect format for the url provided in %s: %s", parent, s)
	}
	return errs.Inputf("Incorrect format for the url provided: %s", s)
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
