package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore archives the captured image for each receipt so the review
// view can display it. Images are kept out of the receipt slot; losing
// one never affects the correctness of a record.
type ImageStore interface {
	// Save stores the image for a receipt id and returns the filename
	Save(id string, mime string, data []byte) (string, error)

	// Get returns the image data and MIME type for a receipt id
	Get(id string) ([]byte, string, error)

	// Delete removes the image for a receipt id, if any
	Delete(id string) error
}

// LocalImageStore implements ImageStore on the local filesystem
type LocalImageStore struct {
	basePath string
}

// NewLocalImageStore creates the archive directory if needed
func NewLocalImageStore(basePath string) (*LocalImageStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &LocalImageStore{basePath: basePath}, nil
}

func extensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func mimeFor(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// Save writes the image under <id>.<ext>
func (l *LocalImageStore) Save(id string, mime string, data []byte) (string, error) {
	filename := id + extensionFor(mime)
	if err := os.WriteFile(filepath.Join(l.basePath, filename), data, 0644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return filename, nil
}

// Get reads the image for id, whichever extension it was saved with
func (l *LocalImageStore) Get(id string) ([]byte, string, error) {
	for _, ext := range []string{".jpg", ".png", ".gif"} {
		data, err := os.ReadFile(filepath.Join(l.basePath, id+ext))
		if err == nil {
			return data, mimeFor(ext), nil
		}
	}
	return nil, "", fmt.Errorf("image not found for receipt %s", id)
}

// Delete removes the image for id; missing files are not an error
func (l *LocalImageStore) Delete(id string) error {
	for _, ext := range []string{".jpg", ".png", ".gif"} {
		path := filepath.Join(l.basePath, id+ext)
		if err := os.Remove(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("deleting image: %w", err)
		}
	}
	return nil
}
