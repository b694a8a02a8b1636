// Package cleanup removes leftovers of interrupted or superseded runs from a
// download tree.
package cleanup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	Torrents bool
	Magnets  bool
	DryRun   bool
}

// Report counts removed files by suffix.
type Report struct {
	Removed map[string]int
	Failed  int
}

func (r Report) String() string {
	var parts []string
	for _, suffix := range []string{".tmp", ".torrent", "-magnet.txt"} {
		if n := r.Removed[suffix]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s file(s)", n, suffix))
		}
	}
	s := "Removed "
	if len(parts) == 0 {
		s += "0 files"
	} else {
		s += strings.Join(parts, ", ")
	}
	if r.Failed > 0 {
		s += fmt.Sprintf(", failed to remove %d file(s)", r.Failed)
	}
	return s
}

// Clean walks root and deletes *.tmp files, plus torrents and magnet files
// when asked.
func Clean(root string, opts Options) (Report, error) {
	rep := Report{Removed: map[string]int{}}
	info, err := os.Stat(root)
	if err != nil {
		return rep, err
	}
	if !info.IsDir() {
		return rep, fmt.Errorf("%s is not a directory", root)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("Error accessing %q during scan: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		suffix := matchSuffix(strings.ToLower(d.Name()), opts)
		if suffix == "" {
			return nil
		}
		if opts.DryRun {
			log.Infof("Would remove %s", path)
			rep.Removed[suffix]++
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Errorf("Failed to remove %s", path)
			rep.Failed++
			return nil
		}
		log.Debugf("Removed %s", path)
		rep.Removed[suffix]++
		return nil
	})
	return rep, err
}

func matchSuffix(name string, opts Options) string {
	switch {
	case strings.HasSuffix(name, ".tmp"):
		return ".tmp"
	case opts.Torrents && strings.HasSuffix(name, ".torrent"):
		return ".torrent"
	case opts.Magnets && strings.HasSuffix(name, "-magnet.txt"):
		return "-magnet.txt"
	}
	return ""
}
