package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{21, 5, 1, 2105001},
		{12, 10, 1, 1210001},
		{93, 10, 1, 9310001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			if got != tt.expected {
				t.Errorf("MakeCode(%d, %d, %d) = %d, want %d",
					tt.service, tt.category, tt.sequence, got, tt.expected)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	service, category, sequence := ParseCode(ErrDuplicateChunkIndex.Code)
	if service != ServiceIngest || category != CategoryConflict || sequence != 1 {
		t.Errorf("ParseCode(%d) = (%d, %d, %d)", ErrDuplicateChunkIndex.Code, service, category, sequence)
	}
}

func TestClientServerClassification(t *testing.T) {
	if !IsClientError(ErrUnknownTag.Code) {
		t.Error("ErrUnknownTag should be a client error")
	}
	if !IsClientError(ErrUnsupportedFileType.Code) {
		t.Error("ErrUnsupportedFileType should be a client error")
	}
	if !IsServerError(ErrParseFailure.Code) {
		t.Error("ErrParseFailure should be a server error")
	}
	if !IsServerError(ErrBrokerUnavailable.Code) {
		t.Error("ErrBrokerUnavailable should be a server error")
	}
	if IsServerError(ErrChunkNotFound.Code) {
		t.Error("ErrChunkNotFound should not be a server error")
	}
}

func TestErrnoCopiesDoNotMutateOriginal(t *testing.T) {
	cause := stderrors.New("connection refused")
	wrapped := ErrDatabase.WithCause(cause).WithMessage("insert chunk")

	if ErrDatabase.MessageEN != "Database error" {
		t.Errorf("original message mutated: %q", ErrDatabase.MessageEN)
	}
	if ErrDatabase.Unwrap() != nil {
		t.Error("original cause mutated")
	}
	if wrapped.MessageEN != "insert chunk" {
		t.Errorf("wrapped message = %q", wrapped.MessageEN)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("wrapped errno should unwrap to its cause")
	}
}

func TestErrnoIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("store: %w", ErrUnknownTag.WithMessagef("Tags not found in tags table: %v", []string{"a", "b"}))

	if !stderrors.Is(err, ErrUnknownTag) {
		t.Error("errors.Is should match by code through a wrap chain")
	}
	if stderrors.Is(err, ErrTagNotFound) {
		t.Error("errors.Is should not match a different code")
	}
	if !IsCode(err, ErrUnknownTag.Code) {
		t.Error("IsCode should find the errno in the chain")
	}
	if GetCode(stderrors.New("plain")) != -1 {
		t.Error("GetCode should return -1 for non errno errors")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil) != nil {
		t.Error("FromError(nil) should be nil")
	}

	wrapped := fmt.Errorf("chunking: %w", ErrEmbeddingFailure)
	if got := FromError(wrapped); got.Code != ErrEmbeddingFailure.Code {
		t.Errorf("FromError() code = %d, want %d", got.Code, ErrEmbeddingFailure.Code)
	}

	plain := stderrors.New("boom")
	got := FromError(plain)
	if got.Code != ErrInternal.Code {
		t.Errorf("FromError(plain) code = %d, want %d", got.Code, ErrInternal.Code)
	}
	if !stderrors.Is(got, plain) {
		t.Error("FromError(plain) should keep the cause")
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *Errno
		http int
		grpc codes.Code
	}{
		{"unknown tag", ErrUnknownTag, http.StatusBadRequest, codes.InvalidArgument},
		{"duplicate chunk", ErrDuplicateChunkIndex, http.StatusConflict, codes.AlreadyExists},
		{"chunk not found", ErrChunkNotFound, http.StatusNotFound, codes.NotFound},
		{"broker", ErrBrokerUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{"embedding", ErrEmbeddingFailure, http.StatusBadGateway, codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus() != tt.http {
				t.Errorf("HTTPStatus() = %d, want %d", tt.err.HTTPStatus(), tt.http)
			}
			if tt.err.GRPCStatus() != tt.grpc {
				t.Errorf("GRPCStatus() = %v, want %v", tt.err.GRPCStatus(), tt.grpc)
			}
		})
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Register should panic on duplicate code")
		}
	}()
	Register(New(ErrChunkNotFound.Code, http.StatusNotFound, codes.NotFound, "dup", "重复"))
}

func TestLookup(t *testing.T) {
	e, ok := Lookup(ErrTagExists.Code)
	if !ok || e != ErrTagExists {
		t.Errorf("Lookup(%d) = %v, %v", ErrTagExists.Code, e, ok)
	}
	if _, ok := Lookup(9999999); ok {
		t.Error("Lookup should miss unregistered codes")
	}
}

func TestMessageLanguage(t *testing.T) {
	if ErrParseFailure.Message("zh-CN") != "文档解析失败" {
		t.Errorf("Message(zh-CN) = %q", ErrParseFailure.Message("zh-CN"))
	}
	if ErrParseFailure.Message("en") != "Document parsing failed" {
		t.Errorf("Message(en) = %q", ErrParseFailure.Message("en"))
	}
}

func TestFormat(t *testing.T) {
	err := ErrParseFailure.WithCause(stderrors.New("parser exited"))
	got := fmt.Sprintf("%+v", err)
	want := fmt.Sprintf("errno %d [HTTP 500, gRPC Internal]: Document parsing failed (文档解析失败)\ncaused by: parser exited", ErrParseFailure.Code)
	if got != want {
		t.Errorf("Format(%%+v) = %q, want %q", got, want)
	}
}
