// Package writer renders a ledger in the fixed output column order.
package writer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Writer renders a ledger to a stream.
type Writer interface {
	Write(out io.Writer, ledger *models.Ledger) error
	Extension() string
	ContentType() string
}

// ForFormat returns the writer for "csv" or "xlsx".
func ForFormat(format string, includeHeader bool) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return &CSVWriter{IncludeHeader: includeHeader}, nil
	case "xlsx":
		return &XLSXWriter{IncludeHeader: includeHeader}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q (use csv or xlsx)", format)
}

// WriteToFile writes ledger to the file at path using w.
func WriteToFile(w Writer, path string, ledger *models.Ledger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := w.Write(f, ledger); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// metadata returns the "# key, value" rows describing how the ledger was
// produced. Empty values are left out.
func metadata(ledger *models.Ledger) [][]string {
	var rows [][]string
	add := func(key, value string) {
		if value != "" {
			rows = append(rows, []string{"# " + key, value})
		}
	}
	add("Source", ledger.Source)
	add("Layout", ledger.Layout)
	add("Institution", ledger.Institution)
	add("Currency", ledger.Currency)
	add("Attempts", strings.Join(ledger.Attempts, " > "))
	return rows
}
