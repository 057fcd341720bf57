package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive keeps the original image bytes of stored receipts so a purchase can
// be re-checked against its source later. Archiving is optional and failures
// never block the pipeline.
type Archive interface {
	// Save stores an image and returns the path/filename
	Save(filename string, data []byte) (string, error)

	// Get retrieves an image by path
	Get(path string) ([]byte, error)

	// Delete removes an image
	Delete(path string) error
}

// LocalArchive implements the Archive interface using the local filesystem.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new LocalArchive instance, creating the directory
// if needed.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &LocalArchive{
		basePath: basePath,
	}, nil
}

// Save stores an image in the archive directory.
func (l *LocalArchive) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return filename, nil
}

// Get retrieves an image from the archive directory.
func (l *LocalArchive) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// Delete removes an image from the archive directory.
func (l *LocalArchive) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}
