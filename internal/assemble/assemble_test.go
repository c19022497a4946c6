package assemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/segment"
)

func line(top float64, start bool, fields map[models.Field]string) Line {
	var text []string
	for _, f := range models.Fields {
		if v := fields[f]; v != "" {
			text = append(text, v)
		}
	}
	return Line{Page: 1, Top: top, Bottom: top + 8, Start: start, Fields: fields, Text: strings.Join(text, " ")}
}

func desc(s string) map[models.Field]string {
	return map[models.Field]string{models.FieldDescription: s}
}

func TestMachineMultiLineDescription(t *testing.T) {
	m := NewMachine(Options{})
	assert.Equal(t, Idle, m.State())

	assert.Equal(t, OutcomeIgnored, m.Feed(line(10, false, desc("Opening text"))))
	assert.Equal(t, OutcomeStart, m.Feed(line(20, true, map[models.Field]string{
		models.FieldDate: "01/02/2024", models.FieldDescription: "TRANSFER TO",
	})))
	assert.Equal(t, Open, m.State())
	assert.Equal(t, OutcomeContinuation, m.Feed(line(30, false, desc("JOHN SMITH"))))
	assert.Equal(t, OutcomeContinuation, m.Feed(line(40, false, map[models.Field]string{
		models.FieldDescription: "RENT MARCH", models.FieldDebit: "500.00",
	})))

	recs := m.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "TRANSFER TO JOHN SMITH RENT MARCH", recs[0].Description())
	assert.Equal(t, "01/02/2024", recs[0].Fields[models.FieldDate])
	assert.Empty(t, recs[0].Fields[models.FieldDebit], "continuation amounts are off")
	assert.Equal(t, Idle, m.State())
}

func TestMachineContinuationAmountsFirstWins(t *testing.T) {
	m := NewMachine(Options{ContinuationAmounts: true})
	m.Feed(line(20, true, map[models.Field]string{models.FieldDate: "01/02/2024", models.FieldDescription: "A"}))
	m.Feed(line(30, false, map[models.Field]string{models.FieldDescription: "B", models.FieldAmount: "10.00"}))
	m.Feed(line(40, false, map[models.Field]string{models.FieldDescription: "C", models.FieldAmount: "99.00"}))

	recs := m.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "10.00", recs[0].Fields[models.FieldAmount])
	assert.Equal(t, "A B C", recs[0].Description())
}

func TestMachineStartEmitsPrevious(t *testing.T) {
	m := NewMachine(Options{})
	m.Feed(line(10, true, map[models.Field]string{models.FieldDate: "01/02/2024", models.FieldDescription: "ONE"}))
	m.Feed(line(20, true, map[models.Field]string{models.FieldDate: "02/02/2024", models.FieldDescription: "TWO"}))
	m.Break()
	assert.Equal(t, OutcomeIgnored, m.Feed(line(30, false, desc("orphan"))))

	recs := m.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "ONE", recs[0].Description())
	assert.Equal(t, "TWO", recs[1].Description())
	assert.Empty(t, m.Records())
}

func TestMachineSkipContinuation(t *testing.T) {
	m := NewMachine(Options{SkipContinuation: func(s string) bool { return strings.HasPrefix(s, "Ref:") }})
	m.Feed(line(10, true, map[models.Field]string{models.FieldDate: "01/02/2024", models.FieldDescription: "CARD"}))
	assert.Equal(t, OutcomeSkipped, m.Feed(line(20, false, desc("Ref: 123"))))

	recs := m.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "CARD", recs[0].Description())
	assert.Len(t, recs[0].Raw, 2)
}

func TestWindow(t *testing.T) {
	lines := []Line{
		line(95, false, desc("header noise")),
		line(108, false, desc("SALARY")), // above the first marker, inside the window
		line(110, true, map[models.Field]string{models.FieldDate: "01/02/2024", models.FieldCredit: "5,000.00"}),
		line(120, false, desc("ACME LTD")),
		line(138, false, desc("POS")),
		line(140, true, map[models.Field]string{models.FieldDate: "02/02/2024", models.FieldDebit: "12.00"}),
		line(150, false, desc("COFFEE")),
		line(700, false, desc("Page 1 of 2")),
	}
	recs := Window(lines, 5, 0, 680)
	require.Len(t, recs, 2)
	assert.Equal(t, "SALARY ACME LTD", recs[0].Description())
	assert.Equal(t, "5,000.00", recs[0].Fields[models.FieldCredit])
	assert.Equal(t, "POS COFFEE", recs[1].Description())
	assert.Equal(t, "12.00", recs[1].Fields[models.FieldDebit])

	capped := Window(lines, 5, 15, 0)
	assert.Equal(t, "SALARY ACME LTD", capped[0].Description())
	assert.Equal(t, "POS COFFEE", capped[1].Description())

	assert.Nil(t, Window(lines[:1], 5, 0, 0))
}

func TestBands(t *testing.T) {
	bands := []segment.Band{{Top: 100, Bottom: 140}, {Top: 140, Bottom: 180}, {Top: 180, Bottom: 200}}
	lines := []Line{
		line(90, false, desc("outside")),
		line(102, false, desc("ONLINE")),
		line(112, true, map[models.Field]string{models.FieldDate: "01/02/2024", models.FieldDescription: "TRANSFER", models.FieldDebit: "20.00"}),
		line(124, false, desc("UTILITY")),
		line(150, true, map[models.Field]string{models.FieldDate: "03/02/2024", models.FieldDescription: "REFUND", models.FieldCredit: "5.00"}),
		line(184, false, desc("no marker in this band")),
	}
	recs := Bands(lines, bands)
	require.Len(t, recs, 2)
	assert.Equal(t, "ONLINE TRANSFER UTILITY", recs[0].Description())
	assert.Equal(t, "20.00", recs[0].Fields[models.FieldDebit])
	assert.Equal(t, "01/02/2024", recs[0].Fields[models.FieldDate])
	assert.Equal(t, "REFUND", recs[1].Description())
}
