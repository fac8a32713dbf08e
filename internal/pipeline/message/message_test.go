package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/internal/pipeline/filetype"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/errors"
)

const docID = "3f2b8c1e-6a4d-4f7e-9b0a-1c2d3e4f5a6b"

func validFileMessage() FileProcessMessage {
	return FileProcessMessage{
		Version:    CurrentVersion,
		Username:   "alice",
		Filename:   "report.pdf",
		S3Key:      "uploads/alice/01J-report.pdf",
		UploadedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		FileType:   "pdf",
		DocumentID: docID,
	}
}

func TestFileProcessMessageValidate(t *testing.T) {
	m := validFileMessage()
	require.NoError(t, m.Validate())
	assert.Equal(t, filetype.PDF, m.Type())

	tests := map[string]func(*FileProcessMessage){
		"padded username":  func(m *FileProcessMessage) { m.Username = " alice" },
		"bad version":      func(m *FileProcessMessage) { m.Version = 2 },
		"traversal key":    func(m *FileProcessMessage) { m.S3Key = "../etc/passwd" },
		"no key":           func(m *FileProcessMessage) { m.S3Key = "" },
		"no document id":   func(m *FileProcessMessage) { m.DocumentID = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			m := validFileMessage()
			mutate(&m)
			assert.ErrorIs(t, m.Validate(), errors.ErrInvalidMessage)
		})
	}
}

func TestUnknownFileTypeIsValid(t *testing.T) {
	for _, ft := range []string{"pptx", "unknown", ""} {
		m := validFileMessage()
		m.FileType = ft
		require.NoError(t, m.Validate(), ft)
		assert.Equal(t, filetype.Unknown, m.Type(), ft)
	}
}

func TestOptionalEnvelopeFields(t *testing.T) {
	m := FileProcessMessage{S3Key: "k1", DocumentID: "D1", FileType: "pdf"}
	require.NoError(t, m.Validate())
	assert.Equal(t, "k1", m.Name())

	m.Filename = "report.pdf"
	assert.Equal(t, "report.pdf", m.Name())
}

func TestChunkingMessageValidate(t *testing.T) {
	m := ChunkingMessage{
		Version:    CurrentVersion,
		S3Bucket:   "docs",
		S3Key:      "parsed/" + docID + "/report.md",
		DocumentID: docID,
		FileType:   "pdf",
	}
	require.NoError(t, m.Validate())

	minimal := ChunkingMessage{DocumentID: "D1", S3Key: "md1"}
	require.NoError(t, minimal.Validate())

	minimal.S3Key = ""
	assert.ErrorIs(t, minimal.Validate(), errors.ErrInvalidMessage)
}

func TestDecodeThroughBroker(t *testing.T) {
	ctx := context.Background()
	b := rabbitmq.NewMemoryBroker(0)
	require.NoError(t, b.DeclareQueue(ctx, "q", rabbitmq.QueueOptions{Durable: true}))

	require.NoError(t, b.Publish(ctx, "q", validFileMessage(), PublishOptions()))
	require.NoError(t, b.Publish(ctx, "q", map[string]any{"version": 1}, PublishOptions()))
	require.NoError(t, b.Publish(ctx, "q", validFileMessage(), rabbitmq.PublishOptions{SchemaVersion: 9}))

	var results []error
	b.Drain(ctx, "q", func(_ context.Context, d *rabbitmq.Delivery) error {
		m, err := Decode[FileProcessMessage](d)
		if err == nil {
			assert.Equal(t, docID, m.DocumentID)
		}
		results = append(results, err)
		return nil
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], errors.ErrInvalidMessage)
	assert.ErrorIs(t, results[2], errors.ErrInvalidMessage)
}

func decodeRaw(t *testing.T, body string, headers map[string]any) (*FileProcessMessage, error) {
	t.Helper()
	return Decode[FileProcessMessage](&rabbitmq.Delivery{Queue: "q", Body: []byte(body), Headers: headers})
}

func TestDecodeVersionResolution(t *testing.T) {
	const envelope = `{"username":"alice","filename":"a.pdf","s3Key":"k1","uploadedAt":"2025-01-02T03:04:05Z","fileType":"pdf","documentId":"D1"`

	tests := []struct {
		name    string
		body    string
		headers map[string]any
		want    int
		invalid bool
	}{
		{name: "no version anywhere", body: envelope + `}`, want: CurrentVersion},
		{name: "header only", body: envelope + `}`, headers: map[string]any{rabbitmq.HeaderSchemaVersion: int32(1)}, want: 1},
		{name: "body only", body: envelope + `,"version":1}`, want: 1},
		{name: "body zero", body: envelope + `,"version":0}`, want: CurrentVersion},
		{name: "body from the future", body: envelope + `,"version":2}`, invalid: true},
		{name: "header from the future", body: envelope + `}`, headers: map[string]any{rabbitmq.HeaderSchemaVersion: int32(3)}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decodeRaw(t, tt.body, tt.headers)
			if tt.invalid {
				assert.ErrorIs(t, err, errors.ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Version)
			assert.Equal(t, "D1", m.DocumentID)
			assert.Equal(t, filetype.PDF, m.Type())
		})
	}
}

func TestDecodeEmptyFileType(t *testing.T) {
	m, err := decodeRaw(t, `{"s3Key":"k1","fileType":"","documentId":"D1"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, filetype.Unknown, m.Type())
}

func TestDecodeChunkingEnvelope(t *testing.T) {
	d := &rabbitmq.Delivery{Queue: "q", Body: []byte(`{"documentId":"D1","s3Key":"md1"}`)}
	m, err := Decode[ChunkingMessage](d)
	require.NoError(t, err)
	assert.Equal(t, "D1", m.DocumentID)
	assert.Equal(t, "md1", m.S3Key)
	assert.Empty(t, m.S3Bucket)
	assert.Equal(t, CurrentVersion, m.Version)

	d = &rabbitmq.Delivery{Queue: "q", Body: []byte(`{"documentId":"D1"}`)}
	_, err = Decode[ChunkingMessage](d)
	assert.ErrorIs(t, err, errors.ErrInvalidMessage)
}
