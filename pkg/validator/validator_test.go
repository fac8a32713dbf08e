package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Key  string `json:"key" validate:"required,objectkey"`
	Tag  string `json:"tag" validate:"omitempty,tagname"`
	Name string `json:"name" validate:"trimmed"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	errs := New().Validate(&sample{Key: "", Tag: " bad ", Name: "x "})
	require.True(t, errs.HasErrors())
	assert.Equal(t, []string{"key", "tag", "name"}, errs.Fields())
	assert.Contains(t, errs.Error(), "validation failed: ")
	assert.NotEmpty(t, errs.ForField("tag"))
}

func TestValidatePasses(t *testing.T) {
	errs := New().Validate(&sample{Key: "uploads/u1/a.pdf", Tag: "finance", Name: "ok"})
	assert.Nil(t, errs)
	assert.False(t, errs.HasErrors())
}

func TestIsObjectKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"uploads/u1/01H-report.pdf", true},
		{"parsed/d1/report.md", true},
		{"", false},
		{"/abs/path", false},
		{"a//b", false},
		{"a/../b", false},
		{"a/./b", false},
		{`a\b`, false},
		{"a/b\x00", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsObjectKey(tt.key), tt.key)
	}
}

func TestIsTagName(t *testing.T) {
	assert.True(t, IsTagName("finance"))
	assert.True(t, IsTagName("季度报告"))
	assert.False(t, IsTagName(""))
	assert.False(t, IsTagName(" padded"))
	assert.False(t, IsTagName(strings.Repeat("a", MaxTagNameLength+1)))
	assert.True(t, IsTagName(strings.Repeat("a", MaxTagNameLength)))
}

func TestTranslatedMessages(t *testing.T) {
	v := New()
	en := v.ValidateWithLang(&sample{Key: "../x"}, LangEN)
	zh := v.ValidateWithLang(&sample{Key: "../x"}, LangZH)
	require.True(t, en.HasErrors())
	require.True(t, zh.HasErrors())
	assert.Contains(t, en.Errors[0].Message, "relative object key")
	assert.Contains(t, zh.Errors[0].Message, "相对对象路径")
}

func TestVar(t *testing.T) {
	assert.Nil(t, Global().Var("finance", "tagname"))
	assert.True(t, Global().Var("", "required").HasErrors())
}
