package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
)

// readCSV decodes data as UTF-8, or Latin-1 when it is not valid UTF-8, and
// splits it on the sniffed delimiter.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable text: %v", extractor.ErrUnreadable, err)
		}
		data = decoded
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: binary content", extractor.ErrUnreadable)
	}

	delim, _ := detectDelimiter(sampleLines(string(data), 10))
	if delim == 0 {
		delim = ','
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrUnreadable, err)
	}
	return rows, nil
}

func sampleLines(s string, n int) []string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

// detectDelimiter picks the candidate with the highest count on the busiest
// sample line. Metadata lines above the header rarely contain delimiters.
func detectDelimiter(lines []string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	best, bestCount := rune(0), 0
	for _, line := range lines {
		for _, d := range delimiters {
			if count := strings.Count(line, string(d)); count > bestCount {
				best, bestCount = d, count
			}
		}
	}
	return best, bestCount
}
