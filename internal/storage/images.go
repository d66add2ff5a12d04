package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ImageArchive stores a copy of every accepted, normalized image on disk.
type ImageArchive struct {
	dir string
}

func NewImageArchive(dir string) (*ImageArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure images dir: %w", err)
	}
	return &ImageArchive{dir: dir}, nil
}

// Save writes the JPEG bytes under <dir>/<userID>_<timestamp>.jpg and
// returns the file path.
func (a *ImageArchive) Save(userID int64, ts time.Time, jpegData []byte) (string, error) {
	name := fmt.Sprintf("%d_%s.jpg", userID, ts.Format("20060102150405"))
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, jpegData, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}
