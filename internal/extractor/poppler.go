package extractor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// pdftotext extracts each page with poppler's pdftotext -layout, keeping
// page boundaries. Pages that fail come back empty.
func pdftotext(ctx context.Context, path string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	n := pageCount(ctx, path)
	if n == 0 {
		out, err := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output()
		if err != nil {
			return nil, fmt.Errorf("pdftotext failed: %w", err)
		}
		// form feeds separate pages
		return strings.Split(strings.TrimRight(string(out), "\f"), "\f"), nil
	}

	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		p := strconv.Itoa(i)
		out, err := exec.CommandContext(ctx, "pdftotext", "-layout", "-f", p, "-l", p, path, "-").Output()
		if err != nil {
			continue
		}
		pages[i-1] = strings.TrimSpace(string(out))
	}
	return pages, nil
}

// pageCount asks pdfinfo for the number of pages, 0 when unknown.
func pageCount(ctx context.Context, path string) int {
	out, err := exec.CommandContext(ctx, "pdfinfo", path).Output()
	if err != nil {
		return 0
	}
	return parsePageCount(string(out))
}

func parsePageCount(info string) int {
	for _, line := range strings.Split(info, "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err == nil && n > 0 {
			return n
		}
	}
	return 0
}
