package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/utils"
)

// PDF extracts text page by page. A page that fails to extract is logged
// and skipped; the rest of the document is still used.
type PDF struct {
	chunkSize int
	log       zerolog.Logger
}

func NewPDF(chunkSize int, log zerolog.Logger) *PDF {
	return &PDF{
		chunkSize: chunkSize,
		log:       log.With().Str("component", "pdf_extractor").Logger(),
	}
}

func (p *PDF) Format() Format { return FormatPaginated }

func (p *PDF) Extract(ctx context.Context, data []byte) ([]string, error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, err
	}

	return p.extractPages(ctx, reader.NumPage(), func(n int) (string, error) {
		page := reader.Page(n)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
}

// extractPages walks pages 1..count in order, chunking each page on its own.
func (p *PDF) extractPages(ctx context.Context, count int, pageText func(n int) (string, error)) ([]string, error) {
	var chunks []string
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := safePageText(pageText, n)
		if err != nil {
			p.log.Warn().Err(err).Int("page", n).Msg("skipping page that failed to extract")
			continue
		}

		clean := utils.Sanitize(text)
		if clean == "" {
			continue
		}
		chunks = append(chunks, utils.ChunkText(clean, p.chunkSize)...)
	}
	return chunks, nil
}

func (p *PDF) Metadata(data []byte) Metadata {
	meta := Metadata{
		ByteSize: len(data),
		Title:    Unknown,
		Author:   Unknown,
		Subject:  Unknown,
	}

	reader, err := openPDF(data)
	if err != nil {
		p.log.Debug().Err(err).Msg("pdf metadata unavailable")
		return meta
	}
	meta.PageCount = reader.NumPage()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	meta.Title = unknownIfEmpty(info.Key("Title").Text())
	meta.Author = unknownIfEmpty(info.Key("Author").Text())
	meta.Subject = unknownIfEmpty(info.Key("Subject").Text())
	return meta
}

// openPDF guards against the parser panicking on malformed input.
func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader = nil
			err = fmt.Errorf("%w: %v", ErrUnreadableDocument, r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return reader, nil
}

func safePageText(pageText func(n int) (string, error), n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", n, r)
		}
	}()
	return pageText(n)
}
