// Package blob provides configuration options for the object store.
package blob

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chunkflow/pkg/options"
)

// Supported backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for blob storage.
type Options struct {
	Backend string `json:"backend" mapstructure:"backend"`

	// Bucket is the GCS bucket, or a logical name for the local backend.
	Bucket string `json:"bucket" mapstructure:"bucket"`
	// CredentialsFile is a service account key; empty uses application
	// default credentials.
	CredentialsFile string `json:"-" mapstructure:"credentials-file"`
	// Endpoint overrides the GCS endpoint (emulators).
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	// SignedURLTTL bounds URLs handed to external parsers.
	SignedURLTTL time.Duration `json:"signed-url-ttl" mapstructure:"signed-url-ttl"`

	// Root is the directory used by the local backend.
	Root string `json:"root" mapstructure:"root"`
	// PublicBaseURL, when set, is joined with the key to build local URLs.
	PublicBaseURL string `json:"public-base-url" mapstructure:"public-base-url"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Backend:      BackendLocal,
		Bucket:       "chunkflow",
		SignedURLTTL: 15 * time.Minute,
		Root:         "./data/blobs",
	}
}

// AddFlags adds flags for blob options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "blob."
	fs.StringVar(&o.Backend, p+"backend", o.Backend, "Blob backend: local or gcs.")
	fs.StringVar(&o.Bucket, p+"bucket", o.Bucket, "Bucket name.")
	fs.StringVar(&o.CredentialsFile, p+"credentials-file", o.CredentialsFile, "GCS service account key file (or GOOGLE_APPLICATION_CREDENTIALS).")
	fs.StringVar(&o.Endpoint, p+"endpoint", o.Endpoint, "GCS endpoint override, e.g. an emulator.")
	fs.DurationVar(&o.SignedURLTTL, p+"signed-url-ttl", o.SignedURLTTL, "Lifetime of signed URLs given to parser services.")
	fs.StringVar(&o.Root, p+"root", o.Root, "Root directory of the local backend.")
	fs.StringVar(&o.PublicBaseURL, p+"public-base-url", o.PublicBaseURL, "Base URL that serves the local backend.")
}

// Complete fills defaults from the environment.
func (o *Options) Complete() error {
	if o.CredentialsFile == "" {
		o.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if o.Endpoint == "" {
		o.Endpoint = os.Getenv("STORAGE_EMULATOR_HOST")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	switch o.Backend {
	case BackendLocal:
		if o.Root == "" {
			return fmt.Errorf("blob.root is required for the local backend")
		}
	case BackendGCS:
		if o.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported blob backend %q", o.Backend)
	}
	if o.SignedURLTTL <= 0 {
		return fmt.Errorf("blob.signed-url-ttl must be positive")
	}
	return nil
}
