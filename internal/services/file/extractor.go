package file

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Extractor pulls plain text out of uploaded files. Supported formats:
// PDF, HTML, Markdown and plain text. The format is decided by the file
// extension first, content sniffing second.
type Extractor struct{}

// NewExtractor creates a file text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the plain text content of the file. Unsupported
// formats return domain.ErrUnsupportedFile.
func (e *Extractor) ExtractText(filename string, data []byte) (string, error) {
	switch kind(filename, data) {
	case "pdf":
		return extractPDF(data)
	case "html":
		return extractHTML(data)
	case "text":
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type %q: %w", filepath.Ext(filename), domain.ErrUnsupportedFile)
	}
}

func kind(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".html", ".htm":
		return "html"
	case ".txt", ".md", ".markdown", ".csv", ".json":
		return "text"
	}

	// No usable extension: sniff the content.
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(ct, "text/html"):
		return "html"
	case strings.HasPrefix(ct, "text/"):
		return "text"
	}
	return ""
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w: %w", err, domain.ErrUnsupportedFile)
	}

	var sb strings.Builder
	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w: %w", err, domain.ErrUnsupportedFile)
	}
	if _, err := io.Copy(&sb, r); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return sb.String(), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w: %w", err, domain.ErrUnsupportedFile)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text()), nil
}
