package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"agentchat.io/agent-chat/internal/utils"
)

const byteOrderMark = "\uFEFF"

// PlainText handles UTF-8 text and markdown files. The whole document is
// sanitized as one unit before chunking.
type PlainText struct {
	chunkSize int
}

func NewPlainText(chunkSize int) *PlainText {
	return &PlainText{chunkSize: chunkSize}
}

func (p *PlainText) Format() Format { return FormatPlainText }

func (p *PlainText) Extract(ctx context.Context, data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(string(data), byteOrderMark)
	return utils.ChunkText(utils.Sanitize(text), p.chunkSize), nil
}

func (p *PlainText) Metadata(data []byte) Metadata {
	return Metadata{
		PageCount: 1,
		ByteSize:  len(data),
		Title:     Unknown,
		Author:    Unknown,
		Subject:   Unknown,
	}
}
