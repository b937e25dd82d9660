package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
)

// ErrUnsupportedType is returned for mime types the extractor cannot handle.
var ErrUnsupportedType = errors.New("unsupported mime type")

// Content is the normalized, provider-agnostic result of extraction.
type Content struct {
	Text     string
	Method   string
	Pages    int
	Warnings []string
}

// ExtractionError wraps any failure while converting raw bytes to Content.
type ExtractionError struct {
	MimeType string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.MimeType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts raw uploaded bytes into normalized text content.
// PDF text is pulled directly; images go through tesseract OCR.
type Extractor struct {
	Runner       Runner
	TesseractCmd string
	Lang         string
}

// New builds an Extractor invoking the given tesseract binary.
func New(tesseractCmd, lang string) *Extractor {
	if strings.TrimSpace(tesseractCmd) == "" {
		tesseractCmd = "tesseract"
	}
	if strings.TrimSpace(lang) == "" {
		lang = "eng"
	}
	return &Extractor{Runner: execRunner{}, TesseractCmd: tesseractCmd, Lang: lang}
}

// Extract converts the payload into Content based on its declared mime type.
// It has no side effects beyond producing output.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	if len(data) == 0 {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: errors.New("empty payload")}
	}

	switch normalizeMimeType(mimeType) {
	case mimePDF:
		return e.extractPDF(mimeType, data)
	case mimeJPEG, mimePNG:
		return e.extractImage(ctx, mimeType, data)
	default:
		return Content{}, &ExtractionError{MimeType: mimeType, Err: ErrUnsupportedType}
	}
}

func (e *Extractor) extractPDF(mimeType string, data []byte) (Content, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: err}
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: err}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: err}
	}

	text := normalizeText(buf.String())
	if text == "" {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: errors.New("no text extracted")}
	}
	return Content{
		Text:   text,
		Method: "pdf-text",
		Pages:  pdfReader.NumPage(),
	}, nil
}

func normalizeMimeType(mimeType string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean == "image/jpg" {
		return mimeJPEG
	}
	return clean
}

func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
