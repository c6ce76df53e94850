// Package storage provides object storage for uploaded source files.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// ObjectStore stores raw uploaded files (CSV, XLSX) keyed by path.
// Upload returns a gs:// style URL that is persisted on the data
// source; KeyFromURL inverts it for download and delete.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(url string) (string, error)
	Close() error
}

// ObjectKey builds the storage key for a user's uploaded file:
// {prefix}/{user_id}/{data_source_name}/{filename}.
func ObjectKey(prefix string, userID int64, sourceName, filename string) string {
	parts := []string{fmt.Sprintf("%d", userID), sanitizeSegment(sourceName), sanitizeSegment(filename)}
	if prefix != "" {
		parts = append([]string{strings.Trim(prefix, "/")}, parts...)
	}
	return strings.Join(parts, "/")
}

// sanitizeSegment keeps object keys flat: path separators in
// user-supplied names would create unintended hierarchy.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
