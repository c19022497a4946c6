package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
)

// stream name of an encrypted OOXML package inside its OLE container, UTF-16LE
var encryptedPackage = []byte("E\x00n\x00c\x00r\x00y\x00p\x00t\x00e\x00d\x00P\x00a\x00c\x00k\x00a\x00g\x00e\x00")

// readWorkbook opens every sheet with raw cell values, so dates come back as
// serial numbers and amounts without display formatting.
func readWorkbook(data []byte, password string) ([]Sheet, error) {
	encrypted := bytes.HasPrefix(data, oleMagic)
	if encrypted && !bytes.Contains(data, encryptedPackage) {
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not supported", extractor.ErrUnreadable)
	}
	if encrypted && password == "" {
		return nil, extractor.ErrPasswordRequired
	}

	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{Password: password, RawCellValue: true})
	if err != nil {
		if encrypted || isPasswordMessage(err) {
			if password == "" {
				return nil, fmt.Errorf("%w: %v", extractor.ErrPasswordRequired, err)
			}
			return nil, fmt.Errorf("%w: %v", extractor.ErrPasswordIncorrect, err)
		}
		return nil, fmt.Errorf("%w: %v", extractor.ErrUnreadable, err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no readable sheets", extractor.ErrUnreadable)
	}
	return sheets, nil
}

func isPasswordMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "decrypt") || strings.Contains(msg, "encrypt")
}
