// Package torrent builds BitTorrent metainfo files for downloaded model
// directories.
package torrent

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
)

const pieceLength = 512 * 1024

type Options struct {
	Trackers []string
	// OutputDir receives the .torrent files. Empty means inside the source
	// directory.
	OutputDir string
	Overwrite bool
	Magnet    bool
	CreatedBy string
}

type Result struct {
	TorrentPath string
	MagnetLink  string
	MagnetPath  string
	Skipped     bool
}

// Generate writes <dir name>.torrent for sourceDir and, when asked, a
// <dir name>-magnet.txt beside it.
func Generate(sourceDir string, opts Options) (Result, error) {
	var res Result
	stat, err := os.Stat(sourceDir)
	if err != nil {
		return res, fmt.Errorf("stat source directory %s: %w", sourceDir, err)
	}
	if !stat.IsDir() {
		return res, fmt.Errorf("source path is not a directory: %s", sourceDir)
	}

	outDir := sourceDir
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return res, fmt.Errorf("creating output directory %s: %w", opts.OutputDir, err)
		}
		outDir = opts.OutputDir
	}
	res.TorrentPath = filepath.Join(outDir, stat.Name()+".torrent")

	if _, err := os.Stat(res.TorrentPath); err == nil {
		if !opts.Overwrite {
			log.WithField("path", res.TorrentPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			res.Skipped = true
			return res, nil
		}
		log.WithField("path", res.TorrentPath).Warn("Overwriting existing torrent file")
	}

	mi := metainfo.MetaInfo{CreatedBy: opts.CreatedBy}
	for _, tracker := range opts.Trackers {
		mi.AnnounceList = append(mi.AnnounceList, []string{tracker})
	}
	if len(opts.Trackers) > 0 {
		mi.Announce = opts.Trackers[0]
	}

	// Old side files in sourceDir would otherwise be hashed into the new torrent.
	for _, old := range []string{res.TorrentPath, magnetPath(outDir, stat.Name())} {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return res, fmt.Errorf("removing old %s: %w", old, err)
		}
	}

	info := metainfo.Info{PieceLength: pieceLength}
	if err := info.BuildFromFilePath(sourceDir); err != nil {
		return res, fmt.Errorf("building torrent info from %s: %w", sourceDir, err)
	}
	if mi.InfoBytes, err = bencode.Marshal(info); err != nil {
		return res, fmt.Errorf("encoding torrent info: %w", err)
	}

	f, err := os.Create(res.TorrentPath)
	if err != nil {
		return res, fmt.Errorf("creating torrent file %s: %w", res.TorrentPath, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		return res, fmt.Errorf("writing torrent file %s: %w", res.TorrentPath, err)
	}
	if err := f.Close(); err != nil {
		return res, err
	}
	log.WithField("path", res.TorrentPath).Info("Generated torrent file")

	if opts.Magnet {
		res.MagnetLink = magnetLink(mi.HashInfoBytes().HexString(), stat.Name(), opts.Trackers)
		res.MagnetPath = magnetPath(outDir, stat.Name())
		if err := os.WriteFile(res.MagnetPath, []byte(res.MagnetLink), 0644); err != nil {
			// The torrent itself is fine, only the side file is missing.
			log.WithError(err).WithField("path", res.MagnetPath).Error("Failed to write magnet link file")
			res.MagnetPath = ""
		}
	}
	return res, nil
}

func magnetPath(dir, name string) string {
	return filepath.Join(dir, name+"-magnet.txt")
}

func magnetLink(infoHash, name string, trackers []string) string {
	parts := []string{
		"magnet:?xt=urn:btih:" + infoHash,
		"dn=" + url.QueryEscape(name),
	}
	for _, tracker := range trackers {
		parts = append(parts, "tr="+url.QueryEscape(tracker))
	}
	return strings.Join(parts, "&")
}
