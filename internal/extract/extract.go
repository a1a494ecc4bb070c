// Package extract turns uploaded files into sanitized text chunks.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Format names the family of documents an Extractor understands.
type Format string

const (
	FormatPlainText Format = "plain-text"
	FormatPaginated Format = "paginated-document"
)

// Unknown is reported for metadata fields a document does not carry.
const Unknown = "unknown"

var (
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrInvalidEncoding    = errors.New("file encoding not supported")
	ErrUnreadableDocument = errors.New("document could not be read")
)

// Metadata is best-effort information about an uploaded document.
type Metadata struct {
	PageCount int    `json:"page_count"`
	ByteSize  int    `json:"byte_size"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Subject   string `json:"subject"`
}

// Extractor produces ordered chunks from raw file bytes.
type Extractor interface {
	Format() Format
	Extract(ctx context.Context, data []byte) ([]string, error)
	Metadata(data []byte) Metadata
}

// ForFilename picks an extractor by file extension.
func ForFilename(filename string, chunkSize int, log zerolog.Logger) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return NewPlainText(chunkSize), nil
	case ".pdf":
		return NewPDF(chunkSize, log), nil
	default:
		return nil, ErrUnsupportedType
	}
}

func unknownIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
