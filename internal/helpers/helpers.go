package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// HasHashes reports whether any verifiable hash is present.
func HasHashes(hashes models.Hashes) bool {
	return hashes.SHA256 != "" || hashes.BLAKE3 != "" || hashes.CRC32 != "" || hashes.AutoV2 != ""
}

// CheckHash verifies a file against provided hashes (BLAKE3, CRC32, SHA256, AutoV2).
// The file is streamed once through every hasher. It returns true if any of
// the provided hashes match.
func CheckHash(filepath string, hashes models.Hashes) bool {
	if !HasHashes(hashes) {
		return false
	}
	file, err := os.Open(filepath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("Error opening file %s for hash check", filepath)
		}
		return false
	}
	defer file.Close()

	blake3Hasher := blake3.New(32, nil)
	crc32Hasher := crc32.NewIEEE()
	sha256Hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(blake3Hasher, crc32Hasher, sha256Hasher), file); err != nil {
		log.WithError(err).Errorf("Error reading file %s for hash check", filepath)
		return false
	}

	if hashes.BLAKE3 != "" {
		calculated := strings.ToUpper(hex.EncodeToString(blake3Hasher.Sum(nil)))
		if calculated == strings.ToUpper(strings.TrimSpace(hashes.BLAKE3)) {
			log.WithField("hash", "BLAKE3").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	if hashes.CRC32 != "" {
		calculated := fmt.Sprintf("%08x", crc32Hasher.Sum32())
		if calculated == strings.ToLower(strings.TrimSpace(hashes.CRC32)) {
			log.WithField("hash", "CRC32").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	calculatedSha256 := hex.EncodeToString(sha256Hasher.Sum(nil))
	if hashes.SHA256 != "" {
		if calculatedSha256 == strings.ToLower(strings.TrimSpace(hashes.SHA256)) {
			log.WithField("hash", "SHA256").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	// AutoV2 is the first 10 hex characters of the SHA256.
	if autoV2 := strings.ToLower(strings.TrimSpace(hashes.AutoV2)); autoV2 != "" {
		if strings.HasPrefix(calculatedSha256, autoV2) && len(autoV2) == 10 {
			log.WithField("hash", "AutoV2").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	return false
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

var byteUnits = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'g': 1e9,
	't': 1e12,
}

// ParseBytes reads a byte count such as "500", "1.5k" or "10M".
// Suffixes are decimal multiples. name is only used in the error message.
func ParseBytes(value string, name string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errs.Inputf("Invalid byte value for %s: empty", name)
	}

	multiplier := 1.0
	number := value
	if unit, ok := byteUnits[lower(value[len(value)-1])]; ok {
		multiplier = unit
		number = value[:len(value)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errs.Inputf("Invalid byte value for %s: %s", name, value)
	}
	if n < 0 {
		return 0, errs.Inputf("Invalid byte value for %s: %s must not be negative", name, value)
	}
	return int64(math.Round(n * multiplier)), nil
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// ConvertToSlug converts a string into a filesystem-friendly slug.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	allowedChars := "0123456789abcdefghijklmnopqrstuvwxyz._-"

	var filtered strings.Builder
	for _, ch := range str {
		if strings.ContainsRune(allowedChars, ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}
	for strings.Contains(str, "__") {
		str = strings.ReplaceAll(str, "__", "_")
	}
	str = strings.ReplaceAll(str, "-_", "-")
	str = strings.ReplaceAll(str, "_-", "-")

	return strings.Trim(str, "_-")
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
