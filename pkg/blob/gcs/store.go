// Package gcs implements blob.Store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/kart-io/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/errors"
	options "github.com/kart-io/chunkflow/pkg/options/blob"
)

// Store is a GCS-backed blob store bound to one bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	ttl    time.Duration
}

var _ blob.Store = (*Store)(nil)

// New creates a GCS client from opts.
func New(ctx context.Context, opts *options.Options) (*Store, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.ErrBlobIO.WithCause(err)
	}
	logger.Infow("GCS blob store ready", "bucket", opts.Bucket, "endpoint", opts.Endpoint)
	return NewWithClient(client, opts.Bucket, opts.SignedURLTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, bucket string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		ttl:    ttl,
	}
}

// Get opens the object at key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, mapError(key, err)
	}
	return r, nil
}

// Put uploads r to key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", mapError(key, err)
	}
	if err := w.Close(); err != nil {
		return "", mapError(key, err)
	}
	return key, nil
}

// URL returns a V4 signed GET URL valid for the configured TTL.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.ttl),
	})
	if err != nil {
		return "", errors.ErrBlobIO.WithCause(err)
	}
	return u, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err == nil || stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return mapError(key, err)
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.name
}

// Ping reads the bucket attributes.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return errors.ErrBlobIO.WithCause(err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func mapError(key string, err error) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return errors.ErrBlobNotFound.WithMessagef("object %s not found", key)
	}
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return errors.ErrBlobNotFound.WithMessagef("object %s not found", key)
	}
	return errors.ErrBlobIO.WithCause(err)
}
