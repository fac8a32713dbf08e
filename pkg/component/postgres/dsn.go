package postgres

import (
	"fmt"
	"strings"
)

// BuildDSN creates a key=value DSN with the password escaped.
//
//	host=localhost port=5432 user=postgres password=secret dbname=chunkflow sslmode=disable
func BuildDSN(opts *Options) string {
	if opts == nil {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		escapePostgresValue(opts.Password),
		opts.Database,
		opts.SSLMode,
	)
}

// escapePostgresValue quotes values containing spaces, quotes or
// backslashes.
func escapePostgresValue(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, "'", "''")
	escaped = strings.ReplaceAll(escaped, "\\", "\\\\")
	return "'" + escaped + "'"
}
