package extractor

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/segment"
)

const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
	rowTolerance  = 3.0
)

// readPages opens data with ledongthuc/pdf and acquires every page. A page
// that makes the library panic comes back empty.
func readPages(data []byte) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	pages = make([]models.Page, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, readPage(r, i))
	}
	return pages, nil
}

func readPage(r *pdf.Reader, n int) (page models.Page) {
	page = models.Page{Number: n, Width: defaultWidth, Height: defaultHeight}
	defer func() {
		if recover() != nil {
			page = models.Page{Number: n, Width: page.Width, Height: page.Height}
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return page
	}
	page.Width, page.Height = mediaBox(p.V)

	content := p.Content()
	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, glyph{s: t.S, x: t.X, y: t.Y, w: t.W, size: t.FontSize})
	}
	page.Words = mergeGlyphs(glyphs, page.Height)
	for _, rect := range content.Rect {
		page.Rulings = append(page.Rulings, rectRulings(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y, page.Height)...)
	}
	if t := gridTable(page.Words, page.Rulings); t != nil {
		page.Tables = []models.Table{t}
	}
	page.Text = wordsText(page.Words)
	return page
}

// mediaBox returns the page size, walking up the page tree for an
// inherited box.
func mediaBox(v pdf.Value) (float64, float64) {
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultWidth, defaultHeight
}

// glyph is one positioned text run as the library reports it. y is the
// baseline, measured upward from the bottom of the page.
type glyph struct {
	s       string
	x, y, w float64
	size    float64
}

func (g glyph) width() float64 {
	if g.w > 0 {
		return g.w
	}
	return g.fontSize() * 0.5 * float64(len([]rune(g.s)))
}

func (g glyph) fontSize() float64 {
	if g.size > 0 {
		return g.size
	}
	return 10
}

// mergeGlyphs joins glyphs on the same baseline into words, splitting on
// whitespace and on gaps wider than a third of the font size. Coordinates
// are flipped so Top grows downward.
func mergeGlyphs(glyphs []glyph, height float64) []models.Word {
	sorted := make([]glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if g.s != "" {
			sorted = append(sorted, g)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].y-sorted[j].y) > 1 {
			return sorted[i].y > sorted[j].y
		}
		return sorted[i].x < sorted[j].x
	})

	var words []models.Word
	var cur *models.Word
	var curY float64
	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			cur.Text = strings.TrimSpace(cur.Text)
			words = append(words, *cur)
		}
		cur = nil
	}
	for _, g := range sorted {
		if strings.TrimFunc(g.s, unicode.IsSpace) == "" {
			flush()
			continue
		}
		size := g.fontSize()
		if cur != nil && (math.Abs(g.y-curY) > 1 || g.x-cur.X1 > size*0.3) {
			flush()
		}
		if cur == nil {
			curY = g.y
			cur = &models.Word{X0: g.x, X1: g.x, Top: height - (g.y + size), Bottom: height - g.y}
		}
		cur.Text += g.s
		cur.X1 = math.Max(cur.X1, g.x+g.width())
		if top := height - (g.y + size); top < cur.Top {
			cur.Top = top
		}
	}
	flush()
	return words
}

// rectRulings converts a drawn rectangle into rulings: thin rectangles are
// lines themselves, others contribute their four edges.
func rectRulings(minX, minY, maxX, maxY, height float64) []models.Ruling {
	r := models.Ruling{X0: minX, X1: maxX, Top: height - maxY, Bottom: height - minY}
	if r.X1 < r.X0 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Bottom < r.Top {
		r.Top, r.Bottom = r.Bottom, r.Top
	}
	if r.Horizontal() || r.Vertical() {
		return []models.Ruling{r}
	}
	if r.X1-r.X0 < 2 && r.Bottom-r.Top < 2 {
		return nil
	}
	return []models.Ruling{
		{X0: r.X0, X1: r.X1, Top: r.Top, Bottom: r.Top},
		{X0: r.X0, X1: r.X1, Top: r.Bottom, Bottom: r.Bottom},
		{X0: r.X0, X1: r.X0, Top: r.Top, Bottom: r.Bottom},
		{X0: r.X1, X1: r.X1, Top: r.Top, Bottom: r.Bottom},
	}
}

// wordsText rebuilds reading-order text from positioned words.
func wordsText(words []models.Word) string {
	rows := segment.GroupRows(words, rowTolerance)
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if t := row.Text(); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

type textMethod struct {
	name    string
	extract func(data []byte, pages int) []string
}

// Alternative text layers tried when the positioned words do not read well.
var libraryTextMethods = []textMethod{
	{name: "rows", extract: textByRow},
	{name: "plain", extract: textByFonts},
}

func withReader(data []byte, fn func(r *pdf.Reader)) {
	defer func() { _ = recover() }()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return
	}
	fn(r)
}

func textByRow(data []byte, n int) []string {
	out := make([]string, n)
	withReader(data, func(r *pdf.Reader) {
		for i := 1; i <= n && i <= r.NumPage(); i++ {
			out[i-1] = pageRows(r.Page(i))
		}
	})
	return out
}

func pageRows(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}
	rows, err := p.GetTextByRow()
	if err != nil {
		return ""
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, 0, len(row.Content))
		for _, t := range row.Content {
			parts = append(parts, t.S)
		}
		if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func textByFonts(data []byte, n int) []string {
	out := make([]string, n)
	withReader(data, func(r *pdf.Reader) {
		for i := 1; i <= n && i <= r.NumPage(); i++ {
			out[i-1] = pagePlain(r.Page(i))
		}
	})
	return out
}

func pagePlain(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	if p.V.IsNull() {
		return ""
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		f := p.Font(name)
		fonts[name] = &f
	}
	text, err := p.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// commonWords appear on virtually every statement; text containing none of
// them is taken to be garbage from an undecodable font.
var commonWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "narration",
	"withdrawal", "deposit", "money", "paid", "opening", "closing",
	"transfer", "number", "page", "period", "card",
}

// readable requires more than 50 characters, more than 60% of them plain
// ASCII or Arabic, and at least one common statement word.
func readable(texts []string) bool {
	total, good, length := 0, 0, 0
	for _, t := range texts {
		length += len(strings.TrimSpace(t))
		for _, r := range t {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) ||
				unicode.Is(unicode.Arabic, r) || strings.ContainsRune("£€₹", r) {
				good++
			}
		}
	}
	if length <= 50 || total == 0 || float64(good)/float64(total) <= 0.6 {
		return false
	}
	combined := strings.ToLower(strings.Join(texts, " "))
	for _, w := range commonWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}
