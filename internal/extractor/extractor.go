// Package extractor acquires a positioned document from PDF bytes: per-page
// words with coordinates, ruling lines, grid tables and reading-order text,
// falling back to poppler and then to OCR when the text layer is unusable.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Document-level failures. Everything else is recovered per page.
var (
	ErrPasswordRequired  = errors.New("document is password protected")
	ErrPasswordIncorrect = errors.New("incorrect document password")
	ErrUnreadable        = errors.New("document is corrupt or not a supported PDF")
)

// Options configure an Extractor.
type Options struct {
	OCR OCR
	// OCREnabled runs recognition on pages whose text is too short.
	OCREnabled bool
}

// Extractor turns PDF bytes into a models.Document.
type Extractor struct {
	opts Options
}

// New returns an Extractor.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// IsPDF reports whether data starts with a PDF header, allowing leading junk
// within the first kilobyte as readers do.
func IsPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// Open decrypts data when needed and acquires every page. Only the three
// sentinel errors are returned, wrapped with detail.
func (e *Extractor) Open(ctx context.Context, source string, data []byte, password string) (*models.Document, error) {
	log := logger.FromContext(ctx).With().Str("source", source).Logger()

	plain, err := decrypt(data, password)
	if err != nil {
		return nil, err
	}

	scratch := &scratchFile{data: plain}
	defer scratch.Remove()

	doc := &models.Document{Source: source}
	pages, libErr := readPages(plain)
	if libErr != nil {
		if isPasswordError(libErr) {
			return nil, passwordError(password, libErr)
		}
		log.Warn().Err(libErr).Msg("pdf library could not open document, trying poppler")
	}
	doc.Pages = pages

	if !readable(pageTexts(doc.Pages)) {
		if method := e.fallbackText(ctx, doc, scratch); method != "" {
			log.Debug().Str("method", method).Msg("text layer replaced")
		}
	}
	if e.opts.OCREnabled {
		e.recognise(ctx, doc, scratch)
	}

	if len(doc.Pages) == 0 {
		if libErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, libErr)
		}
		return nil, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	log.Debug().Int("pages", len(doc.Pages)).Msg("document acquired")
	return doc, nil
}

// fallbackText swaps in the first readable alternative text layer and
// returns its name, or "" when none is better.
func (e *Extractor) fallbackText(ctx context.Context, doc *models.Document, scratch *scratchFile) string {
	if len(doc.Pages) > 0 {
		for _, m := range libraryTextMethods {
			texts := m.extract(scratch.data, len(doc.Pages))
			if readable(texts) {
				applyTexts(doc, texts)
				return m.name
			}
		}
	}

	path, err := scratch.Path()
	if err != nil {
		return ""
	}
	texts, err := pdftotext(ctx, path)
	if err != nil || !readable(texts) {
		return ""
	}
	applyTexts(doc, texts)
	return "pdftotext"
}

// recognise OCRs every page whose text is shorter than the configured
// minimum. A failed page keeps whatever text it had.
func (e *Extractor) recognise(ctx context.Context, doc *models.Document, scratch *scratchFile) {
	log := logger.FromContext(ctx)
	ocr := e.opts.OCR.withDefaults()
	if !ocr.Available() {
		return
	}
	path, err := scratch.Path()
	if err != nil {
		log.Warn().Err(err).Msg("cannot stage document for OCR")
		return
	}
	for i := range doc.Pages {
		page := &doc.Pages[i]
		if len(strings.TrimSpace(page.Text)) >= ocr.MinChars {
			continue
		}
		text := ocr.Page(ctx, path, page.Number)
		if text == "" {
			continue
		}
		page.Text = text
		page.OCR = true
		page.Words = nil
		page.Tables = nil
		log.Debug().Int("page", page.Number).Int("chars", len(text)).Msg("page recognised")
	}
}

func applyTexts(doc *models.Document, texts []string) {
	for i, t := range texts {
		if i < len(doc.Pages) {
			doc.Pages[i].Text = t
			continue
		}
		doc.Pages = append(doc.Pages, models.Page{Number: i + 1, Text: t})
	}
}

func pageTexts(pages []models.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Text
	}
	return out
}

// scratchFile writes the decrypted bytes to disk on first use, for the
// external tools that only read files.
type scratchFile struct {
	data []byte
	dir  string
	path string
}

func (s *scratchFile) Path() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	dir, err := os.MkdirTemp("", "statement-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, "statement.pdf")
	if err := os.WriteFile(path, s.data, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	s.dir, s.path = dir, path
	return path, nil
}

func (s *scratchFile) Remove() {
	if s.dir != "" {
		os.RemoveAll(s.dir)
	}
}
