package models

import "strings"

// Word is a run of glyphs with its bounding box. Coordinates are in PDF
// points with the origin at the top-left corner of the page, so Top grows
// downward.
type Word struct {
	Text   string  `json:"text"`
	X0     float64 `json:"x0"`
	X1     float64 `json:"x1"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Ruling is a drawn line or a thin filled rectangle.
type Ruling struct {
	X0, X1 float64
	Top    float64
	Bottom float64
}

// Horizontal reports whether the ruling is a horizontal separator.
func (r Ruling) Horizontal() bool {
	return r.Bottom-r.Top < 2 && r.X1-r.X0 >= 2
}

// Vertical reports whether the ruling is a vertical separator.
func (r Ruling) Vertical() bool {
	return r.X1-r.X0 < 2 && r.Bottom-r.Top >= 2
}

// Table is a grid of cell strings; missing cells are "".
type Table [][]string

// Page is everything the backend could acquire for one page.
type Page struct {
	Number  int
	Width   float64
	Height  float64
	Text    string
	Words   []Word
	Tables  []Table
	Rulings []Ruling
	OCR     bool // text came from character recognition, Words is empty
}

// Lines splits the page text into trimmed non-empty lines.
func (p Page) Lines() []string {
	var lines []string
	for _, l := range strings.Split(p.Text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Document is an acquired statement, pages in order.
type Document struct {
	Source string
	Pages  []Page
}

// FirstPageText returns the text of the first page, or "".
func (d *Document) FirstPageText() string {
	if d == nil || len(d.Pages) == 0 {
		return ""
	}
	return d.Pages[0].Text
}
