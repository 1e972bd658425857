package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageDir is the folder under the media root holding prescription scans.
const ImageDir = "prescription_images"

var (
	ErrTooLarge    = errors.New("file too large")
	ErrNotAnImage  = errors.New("file is not a supported image")
	ErrInvalidPath = errors.New("invalid media path")
)

var imageExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// FileStore keeps uploaded images on local disk under root.
type FileStore struct {
	root     string
	maxBytes int64
}

func NewFileStore(root string, maxBytes int64) *FileStore {
	return &FileStore{root: root, maxBytes: maxBytes}
}

// SaveImage sniffs the content type, writes r to
// <root>/prescription_images/<uuid><ext> and returns the path relative to root.
func (s *FileStore) SaveImage(r io.Reader) (string, error) {
	data, err := s.ReadLimited(r)
	if err != nil {
		return "", err
	}
	ext, ok := imageExt[http.DetectContentType(data)]
	if !ok {
		return "", ErrNotAnImage
	}
	rel := path.Join(ImageDir, uuid.NewString()+ext)
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return rel, nil
}

// ReadLimited reads r fully, failing with ErrTooLarge past the size limit.
func (s *FileStore) ReadLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	limit := s.maxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// Open reads a stored file by its relative path.
func (s *FileStore) Open(rel string) ([]byte, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Remove deletes a stored file; a missing file is not an error.
func (s *FileStore) Remove(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if rel == "" || strings.Contains(rel, "..") || clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
