package json

import (
	"bytes"
	stdjson "encoding/json"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queuedFile struct {
	Version    int        `json:"version"`
	Filename   string     `json:"filename"`
	S3Key      string     `json:"s3Key"`
	UploadedAt time.Time  `json:"uploadedAt"`
	Tags       []string   `json:"tags,omitempty"`
	Extra      RawMessage `json:"extra,omitempty"`
}

func sample() queuedFile {
	return queuedFile{
		Version:    1,
		Filename:   "report <final>.pdf",
		S3Key:      "uploads/alice/01J-report.pdf",
		UploadedAt: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Tags:       []string{"finance", "q1"},
		Extra:      RawMessage(`{"pages":3}`),
	}
}

func TestMarshalMatchesStandardLibrary(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"struct", sample()},
		{"map ordering", map[string]any{"limit": 10, "embedding": []float64{0.5, 0.25}, "completedOnly": true}},
		{"html escaping", map[string]string{"q": "<a & b>"}},
		{"nil slice", struct {
			Tags []string `json:"tags"`
		}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := stdjson.Marshal(tt.v)
			require.NoError(t, err)
			got, err := Marshal(tt.v)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
			assert.Equal(t, string(want), string(got))
		})
	}
}

func TestUnmarshalRoundTrip(t *testing.T) {
	in := sample()
	raw, err := Marshal(in)
	require.NoError(t, err)

	var out queuedFile
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, in.Filename, out.Filename)
	assert.True(t, in.UploadedAt.Equal(out.UploadedAt))
	assert.JSONEq(t, `{"pages":3}`, string(out.Extra))

	assert.Error(t, Unmarshal([]byte(`{"version":`), &out))
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(sample()))

	var out queuedFile
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, "uploads/alice/01J-report.pdf", out.S3Key)
}

func TestValidAndMarshalString(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":[1,2]}`)))
	assert.False(t, Valid([]byte(`{"a":`)))

	s, err := MarshalString(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, s)

	_, err = MarshalString(make(chan int))
	assert.Error(t, err)
}

func TestStdFallback(t *testing.T) {
	assert.True(t, sonicSupported("amd64"))
	assert.True(t, sonicSupported("arm64"))
	assert.False(t, sonicSupported("riscv64"))

	configure("riscv64")
	t.Cleanup(func() { configure(runtime.GOARCH) })
	assert.False(t, IsUsingSonic())

	raw, err := Marshal(sample())
	require.NoError(t, err)
	var out queuedFile
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, []string{"finance", "q1"}, out.Tags)
}
