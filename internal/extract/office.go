package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"
)

const (
	contentTypesPart = "[Content_Types].xml"
	docxDefaultPart  = "word/document.xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	openDocumentPart = "content.xml"
)

var (
	// OOXML text runs: <w:t> in documents, <a:t> in slides.
	wordTextRun  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	slideTextRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// OpenDocument paragraphs, headings and spans.
	odfText    = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)
	docxPart   = regexp.MustCompile(`<Override\b[^>]*>`)
	partName   = regexp.MustCompile(`PartName="([^"]+)"`)
	slideIndex = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

func openZip(format string, content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open %s: not a zip archive: %w", format, err)
	}
	return zr, nil
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return string(b), nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// joinMatches joins the first group of every match of re in s with single spaces.
func joinMatches(re *regexp.Regexp, s string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

// docxMainPart names the main document part declared in [Content_Types].xml, or the default
// location when none is declared.
func docxMainPart(zr *zip.Reader) string {
	f := findZipFile(zr, contentTypesPart)
	if f == nil {
		return docxDefaultPart
	}
	types, err := readZipFile(f)
	if err != nil {
		return docxDefaultPart
	}
	for _, override := range docxPart.FindAllString(types, -1) {
		if !strings.Contains(override, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := partName.FindStringSubmatch(override); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPart
}

// extractDOCX returns the text runs of a .docx body. Runs are matched with their attributes, so
// paragraphs carrying revision ids are not lost.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip("DOCX", content)
	if err != nil {
		return "", err
	}
	part := docxMainPart(zr)
	f := findZipFile(zr, part)
	if f == nil {
		return "", fmt.Errorf("open DOCX: %s not found", part)
	}
	body, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("open DOCX: %w", err)
	}
	return joinMatches(wordTextRun, body), nil
}

// extractPPTX returns the text of every slide in slide order.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip("PPTX", content)
	if err != nil {
		return "", err
	}
	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideIndex.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	texts := make([]string, 0, len(slides))
	for _, s := range slides {
		xml, err := readZipFile(s.file)
		if err != nil {
			return "", fmt.Errorf("open PPTX: %w", err)
		}
		if text := joinMatches(slideTextRun, xml); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// extractOpenDocument returns the paragraph, heading and span text of an OpenDocument
// presentation or spreadsheet.
func extractOpenDocument(format string, content []byte) (string, error) {
	zr, err := openZip(format, content)
	if err != nil {
		return "", err
	}
	f := findZipFile(zr, openDocumentPart)
	if f == nil {
		return "", fmt.Errorf("open %s: %s not found", format, openDocumentPart)
	}
	xml, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", format, err)
	}
	return joinMatches(odfText, xml), nil
}

// extractXLSX returns every sheet's rows, cells separated by tabs.
func extractXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// extractCat returns the text of .odt and .rtf documents.
func extractCat(format string, content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", format, err)
	}
	return text, nil
}
