package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"civitdl/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not in the ledger.
var ErrNotFound = errors.New("key not found")

var gzipMagic = []byte{0x1f, 0x8b}

const versionKeyPrefix = "v_"

// DB is the download ledger: one gzip-compressed JSON DatabaseEntry per
// model version, stored in bitcask.
type DB struct {
	mu sync.RWMutex
	db *bitcask.Bitcask
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	b, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bitcask database at %s: %w", path, err)
	}
	log.Debugf("Ledger opened at %s", path)
	return &DB{db: b}, nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// VersionKey is the ledger key of a model version.
func VersionKey(versionID string) []byte {
	return []byte(versionKeyPrefix + versionID)
}

func (d *DB) Has(key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Has(key)
}

// Get returns the decompressed value for key.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	value, err := d.db.Get(key)
	d.mu.RUnlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting key %s: %w", key, err)
	}
	return decompressIfGzipped(value)
}

// Put gzips value and stores it under key.
func (d *DB) Put(key, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("compressing value for key %s: %w", key, err)
	}
	d.mu.Lock()
	err = d.db.Put(key, compressed)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("putting key %s: %w", key, err)
	}
	return nil
}

func (d *DB) Delete(key []byte) error {
	d.mu.Lock()
	err := d.db.Delete(key)
	d.mu.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting key %s: %w", key, err)
	}
	return nil
}

// Fold calls fn with every key and its decompressed value. Unreadable
// values are logged and skipped.
func (d *DB) Fold(fn func(key, value []byte) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.db.Fold(func(key []byte) error {
		raw, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable key %s", key)
			return nil
		}
		value, err := decompressIfGzipped(raw)
		if err != nil {
			log.WithError(err).Warnf("Skipping undecodable value for key %s", key)
			return nil
		}
		return fn(key, value)
	})
}

// GetEntry loads the ledger entry of a version.
func (d *DB) GetEntry(versionID string) (models.DatabaseEntry, error) {
	var entry models.DatabaseEntry
	raw, err := d.Get(VersionKey(versionID))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("decoding ledger entry for version %s: %w", versionID, err)
	}
	return entry, nil
}

// PutEntry stores entry under its version key.
func (d *DB) PutEntry(entry models.DatabaseEntry) error {
	if entry.VersionID <= 0 {
		return fmt.Errorf("ledger entry for %q has no version id", entry.ModelName)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding ledger entry for version %d: %w", entry.VersionID, err)
	}
	return d.Put(VersionKey(strconv.Itoa(entry.VersionID)), raw)
}

// Entries returns every version entry, newest first.
func (d *DB) Entries() ([]models.DatabaseEntry, error) {
	var entries []models.DatabaseEntry
	err := d.Fold(func(key, value []byte) error {
		if !strings.HasPrefix(string(key), versionKeyPrefix) {
			return nil
		}
		var entry models.DatabaseEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping malformed ledger entry %s", key)
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].VersionID > entries[j].VersionID
	})
	return entries, nil
}

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagic) {
		return value, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Value has a gzip header but no gzip stream, returning raw bytes")
		return value, nil
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		log.WithError(err).Warn("Decompressing value failed, returning raw bytes")
		return value, nil
	}
	return out, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(value); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
