package validator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Custom validation tags.
const (
	TagObjectKey = "objectkey" // relative blob key, no traversal
	TagTagName   = "tagname"   // chunk tag name
	TagTrimmed   = "trimmed"   // no leading or trailing whitespace
)

// MaxTagNameLength matches the tags.name column.
const MaxTagNameLength = 100

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagObjectKey, validateObjectKey)
	_ = v.validate.RegisterValidation(TagTagName, validateTagName)
	_ = v.validate.RegisterValidation(TagTrimmed, validateTrimmed)
}

// validateObjectKey accepts slash separated keys that do not start with a
// slash and contain no empty, "." or ".." segments.
func validateObjectKey(fl validator.FieldLevel) bool {
	return IsObjectKey(fl.Field().String())
}

// IsObjectKey reports whether key is a safe relative object key.
func IsObjectKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, '\\') {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func validateTagName(fl validator.FieldLevel) bool {
	return IsTagName(fl.Field().String())
}

// IsTagName reports whether name can be stored in the tag registry.
func IsTagName(name string) bool {
	if name == "" || strings.TrimSpace(name) != name {
		return false
	}
	if utf8.RuneCountInString(name) > MaxTagNameLength {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func validateTrimmed(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == strings.TrimSpace(s)
}
