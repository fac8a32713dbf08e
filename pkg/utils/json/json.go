// Package json is the JSON codec used across chunkflow. Queue payloads,
// cached search results and HTTP bodies all go through it.
//
// sonic is used on amd64 and arm64; other platforms fall back to
// encoding/json with identical semantics.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v any) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v any) error

	// Valid reports whether data is a valid JSON encoding.
	Valid func(data []byte) bool

	// NewEncoder creates a new JSON encoder for the writer.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a new JSON decoder for the reader.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder is a JSON encoder.
type Encoder interface {
	Encode(v any) error
}

// Decoder is a JSON decoder.
type Decoder interface {
	Decode(v any) error
}

// sonic.ConfigStd keeps map key ordering and HTML escaping identical to
// encoding/json, so cache keys derived from Marshal are stable across
// platforms.
func init() {
	configure(runtime.GOARCH)
}

func configure(arch string) {
	if sonicSupported(arch) {
		useSonic(sonic.ConfigStd)
		return
	}
	useStd()
}

func sonicSupported(arch string) bool {
	return arch == "amd64" || arch == "arm64"
}

func useSonic(api sonic.API) {
	Marshal = api.Marshal
	Unmarshal = api.Unmarshal
	Valid = api.Valid
	NewEncoder = func(w io.Writer) Encoder {
		return api.NewEncoder(w)
	}
	NewDecoder = func(r io.Reader) Decoder {
		return api.NewDecoder(r)
	}
	usingSonic = true
}

func useStd() {
	Marshal = stdjson.Marshal
	Unmarshal = stdjson.Unmarshal
	Valid = stdjson.Valid
	NewEncoder = func(w io.Writer) Encoder {
		return stdjson.NewEncoder(w)
	}
	NewDecoder = func(r io.Reader) Decoder {
		return stdjson.NewDecoder(r)
	}
	usingSonic = false
}

// IsUsingSonic reports whether sonic backs the codec.
func IsUsingSonic() bool {
	return usingSonic
}

// MarshalString encodes v and returns it as a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
