package ingest

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

const MaxUploadSize = 10 * 1024 * 1024

var (
	ErrPayloadTooLarge = errors.New("File size exceeds 10MB limit")
	ErrInvalidFile     = errors.New("Uploaded file must be a CSV file")
)

var csvExtensions = map[string]struct{}{
	".csv": {},
	".txt": {},
	".tsv": {},
}

var csvContentTypes = map[string]struct{}{
	"text/csv":                  {},
	"text/plain":                {},
	"text/tab-separated-values": {},
	"application/csv":           {},
	"application/vnd.ms-excel":  {},
}

// CheckUpload enforces the size limit and a CSV-like declared type before
// the file content is read.
func CheckUpload(filename, contentType string, size int64) error {
	if size > MaxUploadSize {
		return ErrPayloadTooLarge
	}
	if _, ok := csvExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ErrInvalidFile
	}
	if _, ok := csvContentTypes[strings.ToLower(mediaType)]; ok {
		return nil
	}
	return ErrInvalidFile
}
