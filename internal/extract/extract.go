// Package extract pulls a bounded amount of plain text out of documents.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxChars is the maximum number of characters returned for any file.
const MaxChars = 5000

// textTypes are read as UTF-8 text.
var textTypes = map[string]bool{
	"txt": true, "md": true, "java": true, "py": true, "c": true, "cpp": true,
	"h": true, "html": true, "css": true, "js": true, "json": true, "xml": true,
	"yaml": true, "yml": true, "sql": true, "sh": true, "bat": true, "csv": true,
}

// Extractor dispatches on the type tag of a file.
type Extractor struct {
	logger *zap.Logger
}

// New creates an extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("extract")}
}

// Supported reports whether typeTag has an extraction path.
func Supported(typeTag string) bool {
	switch typeTag {
	case "pdf", "docx", "xlsx":
		return true
	}
	return textTypes[typeTag]
}

// Extract returns up to MaxChars characters of text from the file, or false
// when nothing could be extracted. It never panics on malformed input.
func (e *Extractor) Extract(ctx context.Context, path, typeTag string) (text string, ok bool) {
	if !Supported(typeTag) {
		return "", false
	}
	if err := ctx.Err(); err != nil {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("extractor panicked", zap.String("path", path), zap.Any("panic", r))
			text, ok = "", false
		}
	}()

	var err error
	switch typeTag {
	case "pdf":
		text, err = extractPDF(path, MaxChars)
	case "docx":
		text, err = extractDOCX(path, MaxChars)
	case "xlsx":
		text, err = extractXLSX(path, MaxChars)
	default:
		text, err = extractPlain(path, MaxChars)
	}
	if err != nil {
		e.logger.Debug("text extraction failed", zap.String("path", path), zap.String("type", typeTag), zap.Error(err))
		return "", false
	}

	text = strings.TrimSpace(truncate(text, MaxChars))
	if text == "" {
		return "", false
	}
	return text, true
}

// extractPlain reads just enough bytes for max characters and drops
// invalid UTF-8 sequences.
func extractPlain(path string, max int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	buf, err := io.ReadAll(io.LimitReader(f, int64(max*utf8.UTFMax)))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.ToValidUTF8(string(buf), ""), nil
}

// truncate returns at most max characters of s.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// limitedBuilder stops accepting text once max characters were written.
type limitedBuilder struct {
	strings.Builder
	max   int
	count int
}

func (b *limitedBuilder) full() bool {
	return b.count >= b.max
}

func (b *limitedBuilder) add(s string) {
	if b.full() {
		return
	}
	s = truncate(s, b.max-b.count)
	b.count += utf8.RuneCountInString(s)
	b.WriteString(s)
}
