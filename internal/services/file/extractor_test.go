package file

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

func TestExtractText_PlainText(t *testing.T) {
	e := NewExtractor()

	text, err := e.ExtractText("notes.txt", []byte("hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text: got %q", text)
	}
}

func TestExtractText_Markdown(t *testing.T) {
	e := NewExtractor()

	text, err := e.ExtractText("readme.md", []byte("# Title\n\nbody"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Title") {
		t.Errorf("text: got %q", text)
	}
}

func TestExtractText_HTML(t *testing.T) {
	e := NewExtractor()

	html := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>
<body><p>visible content</p></body></html>`

	text, err := e.ExtractText("page.html", []byte(html))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "visible content") {
		t.Errorf("text: got %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color:red") {
		t.Errorf("script/style not stripped: %q", text)
	}
}

func TestExtractText_SniffsWithoutExtension(t *testing.T) {
	e := NewExtractor()

	text, err := e.ExtractText("upload", []byte("plain text payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "plain text payload" {
		t.Errorf("text: got %q", text)
	}
}

func TestExtractText_SniffsHTML(t *testing.T) {
	e := NewExtractor()

	text, err := e.ExtractText("upload", []byte("<!DOCTYPE html><html><body><p>sniffed</p></body></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "sniffed") {
		t.Errorf("text: got %q", text)
	}
}

func TestExtractText_UnsupportedBinary(t *testing.T) {
	e := NewExtractor()

	_, err := e.ExtractText("image.png", []byte{0x89, 0x50, 0x4e, 0x47})
	if !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestExtractText_CorruptPDF(t *testing.T) {
	e := NewExtractor()

	_, err := e.ExtractText("broken.pdf", []byte("not a pdf at all"))
	if !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		filename string
		data     []byte
		want     string
	}{
		{"a.pdf", nil, "pdf"},
		{"a.HTML", nil, "html"},
		{"a.htm", nil, "html"},
		{"a.csv", nil, "text"},
		{"a.json", nil, "text"},
		{"noext", []byte("%PDF-1.4"), "pdf"},
		{"noext", []byte{0xff, 0xd8, 0xff}, ""},
	}
	for _, tt := range tests {
		if got := kind(tt.filename, tt.data); got != tt.want {
			t.Errorf("kind(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
