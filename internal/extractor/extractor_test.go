package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// minimalPDF builds a one-page PDF showing text in Helvetica.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestOpenPasswordProtected(t *testing.T) {
	var enc bytes.Buffer
	conf := model.NewAESConfiguration("secret", "secret", 256)
	if err := api.Encrypt(bytes.NewReader(minimalPDF("Statement of account")), &enc, conf); err != nil {
		t.Skipf("cannot build encrypted fixture: %v", err)
	}

	ex := New(Options{})
	ctx := context.Background()

	_, err := ex.Open(ctx, "locked.pdf", enc.Bytes(), "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = ex.Open(ctx, "locked.pdf", enc.Bytes(), "wrong")
	assert.ErrorIs(t, err, ErrPasswordIncorrect)
	assert.False(t, errors.Is(err, ErrUnreadable))

	doc, err := ex.Open(ctx, "locked.pdf", enc.Bytes(), "secret")
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 1)
}

func TestOpenCorruptFile(t *testing.T) {
	_, err := New(Options{}).Open(context.Background(), "junk.pdf", []byte("this is not a pdf at all"), "")
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.False(t, errors.Is(err, ErrPasswordRequired))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.True(t, IsPDF(append([]byte("\xef\xbb\xbf  "), []byte("%PDF-1.4")...)))
	assert.False(t, IsPDF([]byte("Date,Description,Amount\n")))
}

func TestIsPasswordError(t *testing.T) {
	assert.True(t, isPasswordError(errors.New("pdfcpu: please provide the correct password")))
	assert.True(t, isPasswordError(errors.New("encrypted PDF: invalid password")))
	assert.False(t, isPasswordError(errors.New("pdfcpu: this file is not encrypted")))
	assert.False(t, isPasswordError(errors.New("malformed PDF: missing trailer")))
	assert.False(t, isPasswordError(nil))
}

func TestMergeGlyphs(t *testing.T) {
	glyphs := []glyph{
		{s: "t", x: 25, y: 700, w: 5, size: 10},
		{s: "H", x: 10, y: 700, w: 5, size: 10},
		{s: "i", x: 15, y: 700, w: 5, size: 10},
		{s: " ", x: 20, y: 700, w: 5, size: 10},
		{s: "o", x: 30, y: 700, w: 5, size: 10},
		{s: "far", x: 80, y: 700, w: 15, size: 10},
		{s: "next", x: 10, y: 680, size: 10},
	}

	words := mergeGlyphs(glyphs, 792)
	require.Len(t, words, 4)

	assert.Equal(t, "Hi", words[0].Text)
	assert.Equal(t, 10.0, words[0].X0)
	assert.Equal(t, 20.0, words[0].X1)
	assert.Equal(t, 82.0, words[0].Top)
	assert.Equal(t, 92.0, words[0].Bottom)

	assert.Equal(t, "to", words[1].Text)
	assert.Equal(t, "far", words[2].Text)
	assert.Equal(t, "next", words[3].Text)
	assert.Equal(t, 102.0, words[3].Top)
}

func TestMergeGlyphsWithoutWidths(t *testing.T) {
	// fonts without a Widths array report zero width and no advance
	var glyphs []glyph
	for _, r := range "Balance" {
		glyphs = append(glyphs, glyph{s: string(r), x: 72, y: 720, size: 12})
	}
	words := mergeGlyphs(glyphs, 792)
	require.Len(t, words, 1)
	assert.Equal(t, "Balance", words[0].Text)
}

func TestRectRulings(t *testing.T) {
	line := rectRulings(50, 500, 550, 500.5, 792)
	require.Len(t, line, 1)
	assert.True(t, line[0].Horizontal())
	assert.InDelta(t, 291.5, line[0].Top, 0.001)

	box := rectRulings(50, 400, 550, 500, 792)
	require.Len(t, box, 4)
	h, v := 0, 0
	for _, r := range box {
		if r.Horizontal() {
			h++
		}
		if r.Vertical() {
			v++
		}
	}
	assert.Equal(t, 2, h)
	assert.Equal(t, 2, v)

	assert.Empty(t, rectRulings(10, 10, 11, 11, 792))
}

func word(text string, x0, top float64) models.Word {
	return models.Word{Text: text, X0: x0, X1: x0 + float64(len(text))*5, Top: top, Bottom: top + 8}
}

func TestGridTable(t *testing.T) {
	var rulings []models.Ruling
	for _, y := range []float64{100, 120, 140, 160} {
		rulings = append(rulings, models.Ruling{X0: 40, X1: 400, Top: y, Bottom: y})
	}
	for _, x := range []float64{40, 150, 300, 400} {
		rulings = append(rulings, models.Ruling{X0: x, X1: x, Top: 100, Bottom: 160})
	}
	words := []models.Word{
		word("Date", 45, 105), word("Description", 155, 105), word("Amount", 305, 105),
		word("01/02/2024", 45, 125), word("Coffee", 155, 125), word("shop", 190, 125), word("4.50", 305, 125),
		word("outside", 500, 125),
	}

	table := gridTable(words, rulings)
	require.Len(t, table, 2, "the empty third row is dropped")
	assert.Equal(t, []string{"Date", "Description", "Amount"}, table[0])
	assert.Equal(t, []string{"01/02/2024", "Coffee shop", "4.50"}, table[1])

	assert.Nil(t, gridTable(words, rulings[:2]))
}

func TestWordsText(t *testing.T) {
	words := []models.Word{
		word("Balance", 100, 50), word("Opening", 40, 51), word("01/02/2024", 40, 80),
	}
	assert.Equal(t, "Opening Balance\n01/02/2024", wordsText(words))
}

func TestReadable(t *testing.T) {
	good := "Statement of account\n01/02/2024 Card payment Tesco 25.99 1,200.00"
	assert.True(t, readable([]string{good}))
	assert.False(t, readable([]string{"short"}))
	assert.False(t, readable([]string{strings.Repeat("éñüç", 30) + " balance"}))
	assert.False(t, readable([]string{strings.Repeat("lorem ipsum ", 10)}))
}

func TestParsePageCount(t *testing.T) {
	info := "Title:          Statement\nPages:          3\nEncrypted:      no\n"
	assert.Equal(t, 3, parsePageCount(info))
	assert.Equal(t, 0, parsePageCount("garbage"))
}

func TestCleanOCRText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"19,720; 15", "19,720.15"},
		{"1,234:56", "1,234.56"},
		{"ATM 250:75", "ATM 250.75"},
		{"01/02/2024 10:30 ATM 1,250.00", "01/02/2024 10:30 ATM 1,250.00"},
		{"POSTED 09:15:42", "POSTED 09:15:42"},
		{"Balance 19,720.15:", "Balance 19,720.15"},
		{"01O10O2025 POS", "01-10-2025 POS"},
		{"01l10l2025 ATM", "01-10-2025 ATM"},
		{"TOTAL 100o50", "TOTAL 100.50"},
		{"AED 25.00 NA", "AED 25.00"},
		{"O5/02/2024", "05/02/2024"},
		{"  \n\nline\r\n", "line"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOCRText(tt.in))
		})
	}
}

func TestOCRDefaults(t *testing.T) {
	o := OCR{}.withDefaults()
	assert.Equal(t, 300, o.DPI)
	assert.Equal(t, "eng", o.Lang)
	assert.Equal(t, 50, o.MinChars)
	assert.NotZero(t, o.Timeout)
}
