package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFileName is the sibling file holding BLAKE3 hashes of config files.
const ChecksumFileName = ".checksums"

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// HashBytes computes the BLAKE3 hash of a byte slice. Used to record a
// digest of each raw webhook body on its delivery row.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// VerifyChecksums verifies configPath against the .checksums file in the
// same directory, when one exists. Absence of .checksums (or of an entry for
// this file) is not an error; checksums are opt-in tamper detection.
func VerifyChecksums(configPath string) error {
	dir := filepath.Dir(configPath)
	checksumPath := filepath.Join(dir, ChecksumFileName)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checksums: %w", err)
	}

	var sums map[string]string
	if err := yaml.Unmarshal(data, &sums); err != nil {
		return fmt.Errorf("parse checksums: %w", err)
	}

	expected, ok := sums[filepath.Base(configPath)]
	if !ok {
		return nil
	}
	return VerifyFileHash(configPath, expected)
}

// GenerateChecksums computes BLAKE3 hashes for the named files and writes
// the .checksums file into dir. Missing files are skipped.
func GenerateChecksums(dir string, files []string) error {
	sums := make(map[string]string, len(files))
	for _, name := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", name, err)
		}
		sums[name] = hash
	}

	out, err := yaml.Marshal(sums)
	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ChecksumFileName), out, 0o644); err != nil {
		return fmt.Errorf("write checksums: %w", err)
	}
	return nil
}
