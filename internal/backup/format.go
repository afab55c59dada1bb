package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Backup file formats. V1 is a single indented JSON document. V2 is a JSON
// header line followed by the gzip-compressed payload.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize caps the payload read from any backup file (64MB).
const MaxDecompressedSize = 64 << 20

// BackupHeader is the first line of a V2 file.
type BackupHeader struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	RunCount   int       `json:"run_count"`
	Compressed bool      `json:"compressed"`
}

// DetectFormat reports whether path holds a V1 or V2 backup.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read backup: %w", err)
	}
	first = bytes.TrimSpace(first)
	if len(first) == 0 {
		return 0, errors.New("backup file is empty")
	}

	var header BackupHeader
	if json.Unmarshal(first, &header) == nil && header.Version == FormatV2 {
		return FormatV2, nil
	}
	if first[0] == '{' {
		return FormatV1, nil
	}
	return 0, errors.New("not a fieldspace backup")
}

// WriteV2 writes b as a header line plus a gzip payload, with mode 0600.
func WriteV2(path string, b *BackupFormat) error {
	var payload bytes.Buffer
	zw := gzip.NewWriter(&payload)
	if err := json.NewEncoder(zw).Encode(b); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress backup: %w", err)
	}

	header, err := json.Marshal(BackupHeader{
		Version:    FormatV2,
		CreatedAt:  b.CreatedAt,
		Checksum:   checksum(payload.Bytes()),
		RunCount:   len(b.Runs),
		Compressed: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	data := append(append(header, '\n'), payload.Bytes()...)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// ReadV2 loads a V2 file after checking its checksum.
func ReadV2(path string) (*BackupFormat, error) {
	_, payload, err := openV2(path)
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress backup: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress backup: %w", err)
	}
	if len(raw) > MaxDecompressedSize {
		return nil, fmt.Errorf("backup payload exceeds %d bytes", MaxDecompressedSize)
	}

	var b BackupFormat
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	return &b, nil
}

// ReadV2Header returns the header of a V2 file without touching the payload.
func ReadV2Header(path string) (*BackupHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks a V2 file's payload against its header.
func VerifyChecksum(path string) error {
	_, _, err := openV2(path)
	return err
}

// openV2 returns the header and the verified compressed payload.
func openV2(path string) (*BackupHeader, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	payload, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read backup payload: %w", err)
	}
	if got := checksum(payload); got != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: header says %s, payload is %s", header.Checksum, got)
	}
	return header, payload, nil
}

func readHeader(r *bufio.Reader) (*BackupHeader, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read backup header: %w", err)
	}

	var header BackupHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, fmt.Errorf("failed to decode backup header: %w", err)
	}
	if header.Version != FormatV2 {
		return nil, fmt.Errorf("not a V2 backup (version %d)", header.Version)
	}
	return &header, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
