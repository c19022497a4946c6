package segment

import (
	"sort"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Band is the vertical span between two consecutive horizontal rulings.
type Band struct {
	Top    float64
	Bottom float64
}

// Contains reports whether the vertical center of [top, bottom] lies
// strictly inside the band.
func (b Band) Contains(top, bottom float64) bool {
	mid := (top + bottom) / 2
	return mid > b.Top && mid < b.Bottom
}

// HorizontalRulings returns the distinct y positions of horizontal rulings
// whose top is below minTop, sorted top to bottom. Lines within one point of
// each other count once.
func HorizontalRulings(rulings []models.Ruling, minTop float64) []float64 {
	var ys []float64
	for _, r := range rulings {
		if !r.Horizontal() || r.Top <= minTop {
			continue
		}
		ys = append(ys, (r.Top+r.Bottom)/2)
	}
	sort.Float64s(ys)

	var out []float64
	for _, y := range ys {
		if len(out) > 0 && y-out[len(out)-1] <= 1 {
			continue
		}
		out = append(out, y)
	}
	return out
}

// Bands pairs consecutive horizontal rulings.
func Bands(rulings []models.Ruling, minTop float64) []Band {
	ys := HorizontalRulings(rulings, minTop)
	if len(ys) < 2 {
		return nil
	}
	bands := make([]Band, 0, len(ys)-1)
	for i := 1; i < len(ys); i++ {
		bands = append(bands, Band{Top: ys[i-1], Bottom: ys[i]})
	}
	return bands
}
