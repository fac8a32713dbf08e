// Package local implements blob.Store on the local filesystem.
package local

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// Store keeps objects as files under a root directory.
type Store struct {
	root    string
	bucket  string
	baseURL string
}

var _ blob.Store = (*Store)(nil)

// New creates the root directory if needed.
func New(root, bucket, baseURL string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.ErrBlobIO.WithCause(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.ErrBlobIO.WithCause(err)
	}
	return &Store{root: abs, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// path resolves key inside root, rejecting keys that escape it.
func (s *Store) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", errors.ErrBlobIO.WithMessagef("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Get opens the file for key.
func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.ErrBlobNotFound.WithMessagef("object %s not found", key)
		}
		return nil, errors.ErrBlobIO.WithCause(err)
	}
	return f, nil
}

// Put writes r to a temp file and renames it into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.ErrBlobIO.WithCause(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return "", errors.ErrBlobIO.WithCause(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", errors.ErrBlobIO.WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.ErrBlobIO.WithCause(err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", errors.ErrBlobIO.WithCause(err)
	}
	return key, nil
}

// URL returns PublicBaseURL/key when configured, otherwise a file URL.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if s.baseURL != "" {
		return s.baseURL + path.Clean("/"+key), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

// Delete removes the file for key.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.ErrBlobIO.WithCause(err)
	}
	return nil
}

// Bucket returns the logical bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Ping checks the root is a directory.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return errors.ErrBlobIO.WithCause(err)
	}
	if !info.IsDir() {
		return errors.ErrBlobIO.WithMessagef("%s is not a directory", s.root)
	}
	return nil
}
