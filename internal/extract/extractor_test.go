package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/colindex/internal/models"
)

func TestChunker_Chunk(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []string
	}{
		{"overlapping", 3, 1, "one two three four five six seven",
			[]string{"one two three", "three four five", "five six seven"}},
		{"no overlap", 2, 0, "a b c d e", []string{"a b", "c d", "e"}},
		{"shorter than size", 10, 2, "a  b\nc", []string{"a b c"}},
		{"unbounded", 0, 0, "a b c", []string{"a b c"}},
		{"overlap not smaller than size", 2, 5, "a b c", []string{"a b", "b c"}},
		{"empty", 5, 1, "   \n\t  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChunker(tt.size, tt.overlap).Chunk(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chunk = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocess(t *testing.T) {
	if got := Preprocess("  a \n\n b\t c  "); got != "a b c" {
		t.Errorf("Preprocess = %q", got)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor(10, 0)
	units, err := e.ExtractBytes("/tmp/x.txt", []byte("hello \xff world"))
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || !strings.Contains(units[0].Content, "�") {
		t.Errorf("units = %+v", units)
	}
}

func TestExtract_plainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	words := make([]string, 25)
	for i := range words {
		words[i] = "w"
	}
	if err := os.WriteFile(path, []byte(strings.Join(words, " ")), 0600); err != nil {
		t.Fatal(err)
	}
	units, err := NewExtractor(10, 0).Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 3 {
		t.Fatalf("units = %d, want 3", len(units))
	}
	for i, u := range units {
		if u.Payload[KeySourcePath] != path {
			t.Errorf("unit %d source_path = %v", i, u.Payload[KeySourcePath])
		}
		if u.Payload[KeyFilename] != "notes.md" {
			t.Errorf("unit %d filename = %v", i, u.Payload[KeyFilename])
		}
		if u.Payload[KeyChunkIndex] != i {
			t.Errorf("unit %d chunk_index = %v", i, u.Payload[KeyChunkIndex])
		}
		if u.Payload[KeyText] != u.Content {
			t.Errorf("unit %d text payload differs from content", i)
		}
	}
}

func TestExtract_emptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	units, err := NewExtractor(10, 0).Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor(10, 0).Extract(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtractBytes_invalidPDF(t *testing.T) {
	_, err := NewExtractor(10, 0).ExtractBytes("/tmp/doc.PDF", []byte("not a pdf"))
	if err == nil || !strings.Contains(err.Error(), "open PDF") {
		t.Errorf("err = %v, want open PDF error", err)
	}
}

func TestPageUnits(t *testing.T) {
	units := pageUnits("/docs/a.pdf", []string{"first  page", "", "third page"})
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	if units[0].Payload[KeyPageNumber] != 1 || units[1].Payload[KeyPageNumber] != 3 {
		t.Errorf("page numbers = %v, %v", units[0].Payload[KeyPageNumber], units[1].Payload[KeyPageNumber])
	}
	if units[1].Payload[KeyPageCount] != 3 {
		t.Errorf("page_count = %v", units[1].Payload[KeyPageCount])
	}
	if units[0].Content != "first page" {
		t.Errorf("content = %q", units[0].Content)
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func xlsxBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for cell, v := range map[string]string{"A1": "region", "B1": "revenue", "A2": "north", "B2": "42"} {
		if err := f.SetCellValue("Sheet1", cell, v); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_documents(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content []byte
		want    string
	}{
		{
			name: "docx",
			path: "/docs/report.docx",
			content: zipBytes(t, map[string]string{
				"word/document.xml": `<w:document><w:body><w:p w:rsidR="00AB"><w:r><w:t>Quarterly</w:t></w:r>` +
					`<w:r><w:t xml:space="preserve"> report </w:t></w:r></w:p></w:body></w:document>`,
			}),
			want: "Quarterly report",
		},
		{
			name: "docx with declared main part",
			path: "/docs/custom.DOCX",
			content: zipBytes(t, map[string]string{
				"[Content_Types].xml": `<Types><Override PartName="/word/main.xml" ContentType="` + docxMainType + `"/></Types>`,
				"word/main.xml":       `<w:p><w:r><w:t>moved body</w:t></w:r></w:p>`,
			}),
			want: "moved body",
		},
		{
			name: "pptx in slide order",
			path: "/docs/deck.pptx",
			content: zipBytes(t, map[string]string{
				"ppt/slides/slide10.xml":           `<p:sld><a:t>tenth</a:t></p:sld>`,
				"ppt/slides/slide2.xml":            `<p:sld><a:t>second</a:t><a:t lang="en">slide</a:t></p:sld>`,
				"ppt/slides/_rels/slide2.xml.rels": `<a:t>ignored</a:t>`,
			}),
			want: "second slide tenth",
		},
		{
			name: "ods",
			path: "/docs/sheet.ods",
			content: zipBytes(t, map[string]string{
				"content.xml": `<office:body><table:table-cell><text:p>cell one</text:p></table:table-cell>` +
					`<text:h text:outline-level="1">Title</text:h></office:body>`,
			}),
			want: "cell one Title",
		},
		{
			name:    "xlsx",
			path:    "/docs/numbers.xlsx",
			content: xlsxBytes(t),
			want:    "region revenue north 42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := NewExtractor(50, 0).ExtractBytes(tt.path, tt.content)
			if err != nil {
				t.Fatal(err)
			}
			if len(units) != 1 {
				t.Fatalf("units = %d, want 1", len(units))
			}
			if units[0].Content != tt.want {
				t.Errorf("content = %q, want %q", units[0].Content, tt.want)
			}
			if units[0].Payload[KeyChunkIndex] != 0 || units[0].Payload[KeySourcePath] != tt.path {
				t.Errorf("payload = %v", units[0].Payload)
			}
		})
	}
}

func TestExtractBytes_rejectsBinary(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content []byte
	}{
		{"image", "/docs/photo.png", []byte("\x89PNG")},
		{"nul bytes", "/docs/blob.dat", []byte("abc\x00def")},
		{"corrupt docx", "/docs/report.docx", []byte("not a zip")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := NewExtractor(50, 0).ExtractBytes(tt.path, tt.content)
			if err == nil {
				t.Fatalf("units = %+v, want error", units)
			}
			if tt.name != "corrupt docx" && (!errors.Is(err, ErrUnsupportedFormat) || !errors.Is(err, models.ErrConfiguration)) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}
