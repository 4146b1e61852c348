// Package content stores lesson material (videos and PDF documents) on
// the local filesystem and hands out opaque refs for retrieval.
package content

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	KindVideo = "video"
	KindPDF   = "pdf"
)

var (
	ErrUnknownKind = errors.New("unknown content kind")
	ErrBadRef      = errors.New("bad content ref")
)

// Store writes lesson material under a single root directory. Refs are
// forward-slash relative paths of the form
// <courseID>/lesson_<n>/<kind>/<filename> and never escape the root.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save streams the upload to disk and returns its ref. An existing file
// for the same course, lesson, kind and name is overwritten.
func (s *Store) Save(courseID string, lessonNumber int, kind, filename string, r io.Reader) (string, error) {
	if kind != KindVideo && kind != KindPDF {
		return "", ErrUnknownKind
	}
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", ErrBadRef
	}
	if strings.ContainsAny(courseID, "/\\") || courseID == "" || lessonNumber < 1 {
		return "", ErrBadRef
	}

	ref := fmt.Sprintf("%s/lesson_%d/%s/%s", courseID, lessonNumber, kind, name)
	dst := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create content file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write content file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close content file: %w", err)
	}
	return ref, nil
}

// Open returns the stored file for a ref. Refs are validated so that a
// crafted ref cannot read outside the content root.
func (s *Store) Open(ref string) (*os.File, error) {
	rel := filepath.FromSlash(ref)
	if ref == "" || filepath.IsAbs(rel) {
		return nil, ErrBadRef
	}
	clean := filepath.Clean(rel)
	if clean != rel || strings.HasPrefix(clean, "..") {
		return nil, ErrBadRef
	}

	f, err := os.Open(filepath.Join(s.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBadRef
	}
	if err != nil {
		return nil, fmt.Errorf("open content file: %w", err)
	}
	return f, nil
}
