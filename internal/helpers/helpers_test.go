package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"civitdl/internal/errs"
	"civitdl/internal/models"
)

func TestConvertToSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty string", "", ""},
		{"Simple string", "Simple Test", "simple_test"},
		{"With colon", "Test: Colon", "test-colon"},
		{"With numbers", "Model V1.5", "model_v1.5"},
		{"Invalid characters", "File*Name?Is\"Bad!", "filenameisbad"},
		{"Mixed repeated separators", "mixed-_-separator--test", "mixed-separator-test"},
		{"Leading/trailing separators", "-_Leading Trailing_-_", "leading_trailing"},
		{"All invalid", "!@#$%^&*()+", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToSlug(tt.input)
			if got != tt.want {
				t.Errorf("ConvertToSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"500", 500, false},
		{"10k", 10_000, false},
		{"10K", 10_000, false},
		{"1.5m", 1_500_000, false},
		{"10M", 10_000_000, false},
		{"2g", 2_000_000_000, false},
		{"1t", 1_000_000_000_000, false},
		{" 3k ", 3_000, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10x", 0, true},
		{"k", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input, "limit-rate")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBytes(%q) expected error, got %d", tt.input, got)
				}
				if !errs.Is(err, errs.KindInput) {
					t.Errorf("ParseBytes(%q) error kind = %v, want input", tt.input, errs.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBytes(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheckHash(t *testing.T) {
	tempDir := t.TempDir()

	testContent := []byte("this is test content for hashing")
	expectedCRC32 := "e37f725a"
	expectedSHA256 := "6b5b16aa54c006d03ff82189ce91a586365a9ad1cb67ca79c4d2c943b483e78a"

	testFilePath := filepath.Join(tempDir, "test_hash_file.txt")
	if err := os.WriteFile(testFilePath, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	// BLAKE3 of empty input
	emptyBlake3 := "AF1349B9F5F9A1A6A0404DEA36DCC9499BCB25C9ADC112B7CC9A93CAE41F3262"
	emptyFilePath := filepath.Join(tempDir, "empty.bin")
	if err := os.WriteFile(emptyFilePath, nil, 0644); err != nil {
		t.Fatalf("Failed to create empty file: %v", err)
	}

	tests := []struct {
		name       string
		filepath   string
		hashes     models.Hashes
		wantResult bool
	}{
		{"No file exists", filepath.Join(tempDir, "nonexistent_file.txt"), models.Hashes{SHA256: expectedSHA256}, false},
		{"BLAKE3 match", emptyFilePath, models.Hashes{BLAKE3: emptyBlake3}, true},
		{"BLAKE3 match lowercase api", emptyFilePath, models.Hashes{BLAKE3: strings.ToLower(emptyBlake3)}, true},
		{"CRC32 match", testFilePath, models.Hashes{CRC32: expectedCRC32}, true},
		{"SHA256 match (uppercase api)", testFilePath, models.Hashes{SHA256: strings.ToUpper(expectedSHA256)}, true},
		{"AutoV2 match", testFilePath, models.Hashes{AutoV2: strings.ToUpper(expectedSHA256[:10])}, true},
		{"One mismatch, one match", testFilePath, models.Hashes{BLAKE3: "incorrecthash", CRC32: expectedCRC32}, true},
		{"All mismatch", testFilePath, models.Hashes{BLAKE3: "incorrect1", CRC32: "incorrect2", SHA256: "incorrect3", AutoV2: "0000000000"}, false},
		{"No hashes provided", testFilePath, models.Hashes{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotResult := CheckHash(tt.filepath, tt.hashes)
			if gotResult != tt.wantResult {
				t.Errorf("CheckHash(%q, %+v) = %v, want %v", tt.filepath, tt.hashes, gotResult, tt.wantResult)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	preExistingFile := filepath.Join(baseTempDir, "existing_file.txt")
	if err := os.WriteFile(preExistingFile, nil, 0644); err != nil {
		t.Fatalf("Failed to pre-create file %s: %v", preExistingFile, err)
	}

	tests := []struct {
		name       string
		dirToMake  string
		wantResult bool
	}{
		{"Create nested directory", filepath.Join("nested", "dir"), true},
		{"Directory already exists", "nested", true},
		{"Path is a file", "existing_file.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := filepath.Join(baseTempDir, tt.dirToMake)
			if got := CheckAndMakeDir(full); got != tt.wantResult {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", full, got, tt.wantResult)
			}
			if tt.wantResult {
				info, err := os.Stat(full)
				if err != nil || !info.IsDir() {
					t.Errorf("CheckAndMakeDir(%q) did not leave a directory", full)
				}
			}
		})
	}
}
