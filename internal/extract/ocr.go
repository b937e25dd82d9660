package extract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes an external command and returns its combined output.
// Tests substitute a stub so no tesseract binary is needed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (e *Extractor) extractImage(ctx context.Context, mimeType string, data []byte) (Content, error) {
	dir, err := os.MkdirTemp("", "hra-ocr-*")
	if err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: err}
	}
	defer os.RemoveAll(dir)

	ext := ".png"
	if normalizeMimeType(mimeType) == mimeJPEG {
		ext = ".jpg"
	}
	imgPath := filepath.Join(dir, "page"+ext)
	if err := os.WriteFile(imgPath, data, 0o600); err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: err}
	}

	// "stdout" makes tesseract write the recognized text to standard out
	// instead of an output file.
	out, err := e.Runner.Run(ctx, e.TesseractCmd, imgPath, "stdout", "-l", e.Lang, "--psm", "3")
	if err != nil {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: ocrError(out, err)}
	}

	text := normalizeText(string(out))
	if text == "" {
		return Content{}, &ExtractionError{MimeType: mimeType, Err: errors.New("ocr produced no text")}
	}
	content := Content{Text: text, Method: "tesseract-ocr", Pages: 1}
	if strings.Contains(string(out), "Warning") {
		content.Warnings = append(content.Warnings, "ocr reported warnings")
	}
	return content, nil
}

func ocrError(output []byte, err error) error {
	msg := strings.TrimSpace(string(output))
	if msg == "" {
		return err
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.New(msg + ": " + err.Error())
}
