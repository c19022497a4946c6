package extractor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/insightdelivered/statement-ledger/internal/logger"
)

// OCR rasterises single pages with pdftoppm and recognises them with
// tesseract.
type OCR struct {
	DPI      int
	Lang     string
	Timeout  time.Duration // per page
	MinChars int           // pages with less text than this are recognised
}

func (o OCR) withDefaults() OCR {
	if o.DPI <= 0 {
		o.DPI = 300
	}
	if o.Lang == "" {
		o.Lang = "eng"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MinChars <= 0 {
		o.MinChars = 50
	}
	return o
}

// Available reports whether pdftoppm and tesseract are installed.
func (o OCR) Available() bool {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return false
	}
	_, err := exec.LookPath("tesseract")
	return err == nil
}

// Page returns the cleaned recognised text of page n of the PDF at path, or
// "" on any failure including the timeout.
func (o OCR) Page(ctx context.Context, path string, n int) string {
	o = o.withDefaults()
	log := logger.FromContext(ctx).With().Int("page", n).Logger()

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "ocr-page-*")
	if err != nil {
		log.Warn().Err(err).Msg("ocr temp dir")
		return ""
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	page := strconv.Itoa(n)
	cmd := exec.CommandContext(ctx, "pdftoppm", "-r", strconv.Itoa(o.DPI), "-png", "-f", page, "-l", page, "-singlefile", path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("pdftoppm failed")
		return ""
	}

	// psm 6 reads the page as one uniform block, which keeps table rows intact
	out, err := exec.CommandContext(ctx, "tesseract", prefix+".png", "stdout", "-l", o.Lang, "--psm", "6").Output()
	if err != nil {
		log.Warn().Err(err).Msg("tesseract failed")
		return ""
	}
	return CleanOCRText(string(out))
}

var ocrFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	// letter O or l between date parts: 01O10O2025, 01l10l2025
	{regexp.MustCompile(`\b(\d{1,2})[oO](\d{1,2})[oO](\d{4})\b`), "$1-$2-$3"},
	{regexp.MustCompile(`\b(\d{1,2})[il|](\d{1,2})[il|](\d{4})\b`), "$1-$2-$3"},
	// letter O or l as the decimal point: 100o50, 100l50
	{regexp.MustCompile(`(\d)[oO](\d{2})\b`), "$1.$2"},
	{regexp.MustCompile(`(\d)[il|](\d{2})\b`), "$1.$2"},
	// letter O or l as a digit at a number's edge
	{regexp.MustCompile(`\bO(\d)`), "0$1"},
	{regexp.MustCompile(`(\d)O\b`), "${1}0"},
	{regexp.MustCompile(`\bl(\d)`), "1$1"},
	{regexp.MustCompile(`(\d)l\b`), "${1}1"},
	// semicolon or colon read for the decimal point: "19,720; 15", "1,234:56".
	// A colon only counts after a thousands group or three digits, so times
	// such as 10:30 stay intact.
	{regexp.MustCompile(`(\d);\s*(\d)`), "$1.$2"},
	{regexp.MustCompile(`(\d,\d{3}|(?:^|[^\d.,:])\d{3,}):(\d{2})\b`), "$1.$2"},
	// trailing colon after an amount
	{regexp.MustCompile(`(\d):(\s|$)`), "$1$2"},
	// "NA" appended after amounts
	{regexp.MustCompile(`[ \t]+NA\b`), ""},
}

// CleanOCRText repairs the character confusions tesseract makes in date and
// amount positions, line by line.
func CleanOCRText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		for _, f := range ocrFixes {
			line = f.re.ReplaceAllString(line, f.repl)
		}
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
