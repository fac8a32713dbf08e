// Package blob defines the object store the pipeline reads uploads from and
// writes parsed markdown to.
package blob

import (
	"context"
	"io"
	"path"
	"strings"
)

// Store is a flat key/value object store.
type Store interface {
	// Get opens the object at key. A missing object is ErrBlobNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes r to key, replacing any existing object, and returns the
	// stored key.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// URL returns a URL an external service can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// Bucket names the container objects live in.
	Bucket() string
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// ReadAll reads the whole object at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// ParsedKey returns the key parsed markdown for a document is stored under:
// parsed/<documentID>/<base name without extension>.md.
func ParsedKey(documentID, sourceKey string) string {
	base := path.Base(sourceKey)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return path.Join("parsed", documentID, base+".md")
}

// UploadKey returns the key an upload is stored under:
// uploads/<username>/<id>-<filename>.
func UploadKey(username, id, filename string) string {
	return path.Join("uploads", SanitizeName(username), id+"-"+SanitizeName(filename))
}

// SanitizeName strips path separators and control characters from a
// user-supplied name.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case r == '/' || r == ':':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	return out
}
