package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForFilename(t *testing.T) {
	log := zerolog.Nop()

	ext, err := ForFilename("notes.TXT", 500, log)
	require.NoError(t, err)
	assert.Equal(t, FormatPlainText, ext.Format())

	ext, err = ForFilename("readme.md", 500, log)
	require.NoError(t, err)
	assert.Equal(t, FormatPlainText, ext.Format())

	ext, err = ForFilename("paper.pdf", 500, log)
	require.NoError(t, err)
	assert.Equal(t, FormatPaginated, ext.Format())

	_, err = ForFilename("image.png", 500, log)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ForFilename("noextension", 500, log)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPlainTextExtract(t *testing.T) {
	ext := NewPlainText(500)

	chunks, err := ext.Extract(context.Background(), []byte("\uFEFFHello\x00 world.\n\nSecond   line."))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world. Second line."}, chunks)

	_, err = ext.Extract(context.Background(), []byte{0xff, 0xfe, 'a'})
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	chunks, err = ext.Extract(context.Background(), []byte(" \n\t "))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPlainTextChunksWholeDocument(t *testing.T) {
	text := strings.Repeat("word ", 300)
	chunks, err := NewPlainText(500).Extract(context.Background(), []byte(text))
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestPlainTextMetadata(t *testing.T) {
	meta := NewPlainText(500).Metadata([]byte("abc"))
	assert.Equal(t, Metadata{PageCount: 1, ByteSize: 3, Title: Unknown, Author: Unknown, Subject: Unknown}, meta)
}

func TestPDFExtractPagesSkipsFailures(t *testing.T) {
	p := NewPDF(500, zerolog.Nop())
	pages := map[int]string{
		1: "First page text.",
		3: "Third\x00 page   text.",
		4: "   ",
	}

	chunks, err := p.extractPages(context.Background(), 5, func(n int) (string, error) {
		switch n {
		case 2:
			return "", errors.New("broken content stream")
		case 5:
			panic("bad font table")
		}
		return pages[n], nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"First page text.", "Third page text."}, chunks)
}

func TestPDFExtractPagesChunksEachPage(t *testing.T) {
	p := NewPDF(10, zerolog.Nop())
	chunks, err := p.extractPages(context.Background(), 2, func(n int) (string, error) {
		if n == 1 {
			return "aaaa bbbb cccc", nil
		}
		return "dddd", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa bbbb", "cccc", "dddd"}, chunks)
}

func TestPDFExtractPagesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDF(500, zerolog.Nop()).extractPages(ctx, 3, func(int) (string, error) {
		return "text", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPDFRejectsGarbage(t *testing.T) {
	p := NewPDF(500, zerolog.Nop())

	_, err := p.Extract(context.Background(), []byte("definitely not a pdf"))
	assert.ErrorIs(t, err, ErrUnreadableDocument)

	meta := p.Metadata([]byte("definitely not a pdf"))
	assert.Equal(t, 0, meta.PageCount)
	assert.Equal(t, 20, meta.ByteSize)
	assert.Equal(t, Unknown, meta.Title)
	assert.Equal(t, Unknown, meta.Author)
}
