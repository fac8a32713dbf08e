// Package message defines the versioned payloads exchanged between
// pipeline stages.
package message

import (
	"path"
	"time"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/validator"
)

// CurrentVersion is the schema version this build produces and accepts.
// A body without a version takes the x-schema-version header, and a
// delivery with neither is read as CurrentVersion.
const CurrentVersion = 1

// FileProcessMessage announces a new upload to the router.
type FileProcessMessage struct {
	Version    int       `json:"version,omitempty" validate:"omitempty,eq=1"`
	Username   string    `json:"username" validate:"omitempty,trimmed,max=64"`
	Filename   string    `json:"filename" validate:"omitempty,max=255"`
	S3Key      string    `json:"s3Key" validate:"required,objectkey"`
	UploadedAt time.Time `json:"uploadedAt"`
	FileType   string    `json:"fileType"`
	DocumentID string    `json:"documentId" validate:"required,max=128"`
}

// Type returns the parsed file type. Unknown and empty values are not a
// validation error; the router acks them as unsupported.
func (m *FileProcessMessage) Type() filetype.FileType {
	return filetype.ParseFileType(m.FileType)
}

// Name is the display name of the upload, falling back to the key's base
// name when the producer sent no filename.
func (m *FileProcessMessage) Name() string {
	if m.Filename != "" {
		return m.Filename
	}
	return path.Base(m.S3Key)
}

// Validate checks the message against its schema.
func (m *FileProcessMessage) Validate() error {
	return validate(m)
}

func (m *FileProcessMessage) schemaVersion() *int { return &m.Version }

// ChunkingMessage points the chunking consumer at parsed markdown. Only
// the document and the key are required; the bucket defaults to the
// consumer's own.
type ChunkingMessage struct {
	Version          int    `json:"version,omitempty" validate:"omitempty,eq=1"`
	S3Bucket         string `json:"s3Bucket,omitempty"`
	S3Key            string `json:"s3Key" validate:"required,objectkey"`
	DocumentID       string `json:"documentId" validate:"required,max=128"`
	FileType         string `json:"fileType,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty" validate:"omitempty,max=255"`
}

// Validate checks the message against its schema.
func (m *ChunkingMessage) Validate() error {
	return validate(m)
}

func (m *ChunkingMessage) schemaVersion() *int { return &m.Version }

// versioned is implemented by every pipeline message.
type versioned interface {
	Validate() error
	schemaVersion() *int
}

func validate(m any) error {
	if errs := validator.Struct(m); errs.HasErrors() {
		return errors.ErrInvalidMessage.WithMessage(errs.Error())
	}
	return nil
}

func supported(v int) bool {
	return v == 0 || v == CurrentVersion
}

// Decode unmarshals and validates a delivery body into m. A body that does
// not decode, that carries an unsupported version in the body or the
// header, or that fails validation, is ErrInvalidMessage.
func Decode[T any, PT interface {
	*T
	versioned
}](d *rabbitmq.Delivery) (*T, error) {
	var m T
	if err := d.Decode(&m); err != nil {
		return nil, err
	}

	header := d.SchemaVersion()
	if !supported(header) {
		return nil, errors.ErrInvalidMessage.WithMessagef("unsupported schema version %d", header)
	}
	v := PT(&m).schemaVersion()
	if !supported(*v) {
		return nil, errors.ErrInvalidMessage.WithMessagef("unsupported schema version %d", *v)
	}
	if *v == 0 {
		*v = header
	}
	if *v == 0 {
		*v = CurrentVersion
	}

	if err := PT(&m).Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// PublishOptions returns the broker options for a message of this schema.
func PublishOptions() rabbitmq.PublishOptions {
	return rabbitmq.PublishOptions{SchemaVersion: CurrentVersion}
}
