package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Size uint64
}

// Inspect lists the files of a ZIP archive and enforces the size limits.
func Inspect(archive []byte) ([]Entry, error) {
	if len(archive) > MaxTotalSize {
		return nil, fmt.Errorf("archive too large: %d bytes (max %d)", len(archive), MaxTotalSize)
	}
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(zr.File) > MaxFiles {
		return nil, fmt.Errorf("too many files in archive: %d (max %d)", len(zr.File), MaxFiles)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > MaxFileSize {
			return nil, fmt.Errorf("%s: %w", f.Name, ErrFileTooLarge)
		}
		entries = append(entries, Entry{Name: f.Name, Size: f.UncompressedSize64})
	}
	return entries, nil
}
