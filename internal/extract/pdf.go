// Package extract turns uploaded bytes into text or OCR-ready images.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"blackhole/internal/textproc"
)

const (
	// MaxPDFPages limits the number of pages to process
	MaxPDFPages = 100

	// MaxExtractedTextSize limits the extracted text size (1MB)
	MaxExtractedTextSize = 1024 * 1024
)

// ErrNotPDF is returned for data without a PDF header
var ErrNotPDF = errors.New("not a PDF document")

// PDFText is the text layer of a PDF
type PDFText struct {
	Text           string
	PageCount      int
	PagesWithText  int
	PageWordCounts []int
	// Truncated is set when the page or size cap stopped extraction early
	Truncated bool
}

// PDFEngine extracts the text layer of a PDF
type PDFEngine interface {
	Name() string
	Extract(data []byte) (*PDFText, error)
}

// LedongthucEngine extracts text with github.com/ledongthuc/pdf
type LedongthucEngine struct {
	MaxPages    int
	MaxTextSize int
}

// NewPDFEngine returns the default engine with the standard caps
func NewPDFEngine() *LedongthucEngine {
	return &LedongthucEngine{MaxPages: MaxPDFPages, MaxTextSize: MaxExtractedTextSize}
}

func (e *LedongthucEngine) Name() string { return "ledongthuc/pdf" }

// IsPDF reports whether data starts with a PDF header
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

// Extract extracts text from each page, marking pages with "--- Page N ---".
// Pages past MaxPages are skipped and the result is flagged truncated.
func (e *LedongthucEngine) Extract(data []byte) (out *PDFText, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := pdfReader.NumPage()
	if totalPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	maxPages, maxSize := e.MaxPages, e.MaxTextSize
	if maxPages <= 0 {
		maxPages = MaxPDFPages
	}
	if maxSize <= 0 {
		maxSize = MaxExtractedTextSize
	}

	result := &PDFText{PageCount: totalPages, PageWordCounts: make([]int, 0, totalPages)}
	var textBuilder strings.Builder

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if pageNum > maxPages {
			result.Truncated = true
			break
		}
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			result.PageWordCounts = append(result.PageWordCounts, 0)
			continue
		}

		// Skip pages with extraction errors, don't fail completely
		text, err := page.GetPlainText(nil)
		if err != nil {
			result.PageWordCounts = append(result.PageWordCounts, 0)
			continue
		}

		cleaned := textproc.Normalize(text)
		words := textproc.CountWords(cleaned)
		result.PageWordCounts = append(result.PageWordCounts, words)
		if cleaned == "" {
			continue
		}
		result.PagesWithText++
		fmt.Fprintf(&textBuilder, "\n--- Page %d ---\n%s\n", pageNum, cleaned)

		if textBuilder.Len() > maxSize {
			result.Truncated = true
			break
		}
	}

	result.Text = textBuilder.String()
	if len(result.Text) > maxSize {
		result.Text = textproc.Preview(result.Text, maxSize)
		result.Truncated = true
	}
	return result, nil
}
