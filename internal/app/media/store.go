// Package media stores uploaded files under MEDIA_ROOT.
package media

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Subdirectories used by the application.
const (
	AlertVideos      = "alerts/videos"
	AlertThumbnails  = "alerts/thumbnails"
	FaceImages       = "faces/images"
	FaceVerification = "faces/verification"
	ProfilePictures  = "profile_pictures"
	MaxUploadSize    = 100 << 20
)

// Store writes and resolves files relative to a root directory.
type Store struct {
	root string
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Root returns the directory files are stored under.
func (s *Store) Root() string { return s.root }

// Prepare creates the root and the given subdirectories.
func (s *Store) Prepare(dirs ...string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(s.root, filepath.FromSlash(dir)), 0o755); err != nil {
			return fmt.Errorf("create media dir %s: %w", dir, err)
		}
	}
	return nil
}

// Save copies r into subdir under a random name keeping the extension of
// original. It returns the slash separated path relative to the root.
func (s *Store) Save(subdir, original string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 10 {
		ext = ""
	}
	rel := path.Join(subdir, uuid.NewString()+ext)
	full, err := s.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadSize {
		err = fmt.Errorf("file exceeds %d bytes", MaxUploadSize)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write media file: %w", err)
	}
	return rel, nil
}

// Path resolves rel inside the root, rejecting paths that escape it.
func (s *Store) Path(rel string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("empty media path")
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

// Exists reports whether rel names a regular file.
func (s *Store) Exists(rel string) bool {
	full, err := s.Path(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// Open opens rel for reading.
func (s *Store) Open(rel string) (*os.File, error) {
	full, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Remove deletes rel; a missing file is not an error.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	full, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// URL returns the public URL of rel.
func URL(rel string) string {
	if rel == "" {
		return ""
	}
	return "/media/" + strings.TrimPrefix(rel, "/")
}
