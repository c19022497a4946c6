package extractor

import (
	"math"
	"sort"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/segment"
)

const gridMerge = 2.0

// gridTable builds a table from a page's ruling grid: horizontal rulings
// give row edges, vertical rulings give column edges, and each word lands in
// the cell holding its center. It returns nil without at least two rows and
// two columns of cells.
func gridTable(words []models.Word, rulings []models.Ruling) models.Table {
	var ys, xs []float64
	for _, r := range rulings {
		switch {
		case r.Horizontal():
			ys = append(ys, (r.Top+r.Bottom)/2)
		case r.Vertical():
			xs = append(xs, (r.X0+r.X1)/2)
		}
	}
	ys, xs = mergeEdges(ys), mergeEdges(xs)
	if len(ys) < 3 || len(xs) < 3 {
		return nil
	}

	cells := make([][][]models.Word, len(ys)-1)
	for i := range cells {
		cells[i] = make([][]models.Word, len(xs)-1)
	}
	for _, w := range words {
		row := edgeIndex(ys, (w.Top+w.Bottom)/2)
		col := edgeIndex(xs, segment.Center(w))
		if row < 0 || col < 0 {
			continue
		}
		cells[row][col] = append(cells[row][col], w)
	}

	var table models.Table
	for _, row := range cells {
		out := make([]string, len(row))
		empty := true
		for c, ws := range row {
			out[c] = cellText(ws)
			if out[c] != "" {
				empty = false
			}
		}
		if !empty {
			table = append(table, out)
		}
	}
	if len(table) < 2 {
		return nil
	}
	return table
}

// mergeEdges sorts positions and collapses ones closer than gridMerge.
func mergeEdges(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	sort.Float64s(v)
	out := []float64{v[0]}
	for _, x := range v[1:] {
		if math.Abs(x-out[len(out)-1]) > gridMerge {
			out = append(out, x)
		}
	}
	return out
}

// edgeIndex returns i such that edges[i] <= v < edges[i+1], or -1.
func edgeIndex(edges []float64, v float64) int {
	if v < edges[0] || v >= edges[len(edges)-1] {
		return -1
	}
	return sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
}

func cellText(words []models.Word) string {
	if len(words) == 0 {
		return ""
	}
	rows := segment.GroupRows(words, rowTolerance)
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r.Text())
	}
	return strings.Join(parts, " ")
}
