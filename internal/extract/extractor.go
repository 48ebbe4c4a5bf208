// Package extract turns files into indexable units: one per PDF page, or word-window chunks of
// document and plain text, each with a payload describing where it came from.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/colindex/internal/models"
)

// ErrUnsupportedFormat is returned for binary files no extractor understands. It wraps
// models.ErrConfiguration.
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", models.ErrConfiguration)

// binaryExtensions are formats that are never read as text.
var binaryExtensions = map[string]bool{
	".doc": true, ".xls": true, ".ppt": true,
	".zip": true, ".gz": true, ".tar": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".exe": true, ".so": true, ".bin": true,
}

// Payload keys set on every unit.
const (
	KeySourcePath = "source_path"
	KeyFilename   = "filename"
	KeyText       = "text"
	KeyPageNumber = "page_number"
	KeyPageCount  = "page_count"
	KeyChunkIndex = "chunk_index"
)

// DefaultChunkSize and DefaultChunkOverlap are in words.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 20
)

// Unit is one indexable piece of a file.
type Unit struct {
	Content string
	Payload map[string]any
}

// Extractor extracts units from document files.
type Extractor struct {
	chunker *Chunker
}

// NewExtractor returns an Extractor that chunks plain text into windows of chunkSize words
// overlapping by chunkOverlap words.
func NewExtractor(chunkSize, chunkOverlap int) *Extractor {
	return &Extractor{chunker: NewChunker(chunkSize, chunkOverlap)}
}

// Extract reads the file at path and splits it into units. PDF files yield one unit per page
// with text. Office and OpenDocument files (.docx, .xlsx, .pptx, .odt, .odp, .ods, .rtf) have
// their text extracted and chunked; other files are chunked as UTF-8 text unless they look
// binary, which is ErrUnsupportedFormat. A file without text yields no units.
func (e *Extractor) Extract(path string) ([]Unit, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(absPath, content)
}

// ExtractBytes splits content read from sourcePath. The extension of sourcePath selects the
// format.
func (e *Extractor) ExtractBytes(sourcePath string, content []byte) ([]Unit, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if ext == ".pdf" {
		pages, err := extractPDFPages(content)
		if err != nil {
			return nil, err
		}
		return pageUnits(sourcePath, pages), nil
	}
	text, err := documentText(ext, content)
	if err != nil {
		return nil, err
	}
	return e.textUnits(sourcePath, text), nil
}

func documentText(ext string, content []byte) (string, error) {
	switch ext {
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractXLSX(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractOpenDocument("ODP", content)
	case ".ods":
		return extractOpenDocument("ODS", content)
	case ".odt":
		return extractCat("ODT", content)
	case ".rtf":
		return extractCat("RTF", content)
	}
	if binaryExtensions[ext] || bytes.IndexByte(content, 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return extractPlain(content), nil
}

func baseUnit(sourcePath, text string) Unit {
	return Unit{
		Content: text,
		Payload: map[string]any{
			KeySourcePath: sourcePath,
			KeyFilename:   filepath.Base(sourcePath),
			KeyText:       text,
		},
	}
}

func pageUnits(sourcePath string, pages []string) []Unit {
	var units []Unit
	for i, page := range pages {
		text := Preprocess(page)
		if text == "" {
			continue
		}
		u := baseUnit(sourcePath, text)
		u.Payload[KeyPageNumber] = i + 1
		u.Payload[KeyPageCount] = len(pages)
		units = append(units, u)
	}
	return units
}

func (e *Extractor) textUnits(sourcePath, text string) []Unit {
	chunks := e.chunker.Chunk(Preprocess(text))
	units := make([]Unit, 0, len(chunks))
	for i, chunk := range chunks {
		u := baseUnit(sourcePath, chunk)
		u.Payload[KeyChunkIndex] = i
		units = append(units, u)
	}
	return units
}
