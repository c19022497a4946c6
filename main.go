package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-ledger/internal/api"
	"github.com/insightdelivered/statement-ledger/internal/config"
	"github.com/insightdelivered/statement-ledger/internal/convert"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

const version = "2.0.0"

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
)

func main() {
	// CLI flags
	layoutFlag := flag.String("layout", "", "Layout name (auto-detected if omitted; \"spreadsheet\" forces the CSV/XLSX reader)")
	passwordFlag := flag.String("password", "", "Password for encrypted PDFs and workbooks")
	formatFlag := flag.String("format", "csv", "Output format: csv or xlsx")
	outputFlag := flag.String("output", "", "Output file, or directory when converting several files (defaults to the input path with the format's extension)")
	headerFlag := flag.Bool("header", true, "Include \"#\" metadata rows (CSV) or an Info sheet (XLSX)")
	layoutsFlag := flag.String("layouts", "", "Layouts YAML file (overrides LEDGER_LAYOUTS_FILE)")
	unresolvedFlag := flag.String("unresolved", "", "Side for amounts no rule can place: deposit, withdrawal or drop (overrides every layout)")
	noOCRFlag := flag.Bool("no-ocr", false, "Disable OCR of image-only pages")
	debugFlag := flag.Bool("debug", false, "Log every input line and what the engine did with it")
	listFlag := flag.Bool("list-layouts", false, "List the available layouts and exit")
	serveFlag := flag.Bool("serve", false, "Start the HTTP API instead of converting files")
	portFlag := flag.Int("port", 0, "HTTP port (overrides LEDGER_PORT)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Statement Ledger
by Insight Delivered (QEA AutoLens)

Converts bank and credit card statements (PDF, CSV, XLSX) into a ledger
with the columns Date, Withdrawals, Deposits, Payee, Description and
Reference Number.

Usage:
  statement-ledger [flags] <statement> [statement2 ...]
  statement-ledger -serve [-port 8080]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Auto-detect the layout and convert
  statement-ledger statement.pdf

  # Force a layout and open a protected PDF
  statement-ledger -layout=rakbank -password=1234 statement.pdf

  # Several files into a directory as workbooks
  statement-ledger -format=xlsx -output=out/ jan.pdf feb.pdf mar.csv

  # Show the layouts compiled into the binary
  statement-ledger -list-layouts
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-ledger v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}
	if *layoutsFlag != "" {
		cfg.Layouts.File = *layoutsFlag
	}
	if *unresolvedFlag != "" {
		p, err := layout.ParsePolicy(*unresolvedFlag)
		if err != nil {
			fatalf("Invalid -unresolved: %v\n", err)
		}
		cfg.Layouts.Unresolved = p
	}
	if *noOCRFlag {
		cfg.OCR.Enabled = false
	}
	if *portFlag != 0 {
		cfg.Server.Port = *portFlag
	}
	if *debugFlag {
		cfg.Log.Level = "debug"
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx := logger.WithContext(context.Background(), log)

	reg, err := cfg.Layouts.Registry()
	if err != nil {
		fatalf("%v\n", err)
	}

	if *listFlag {
		listLayouts(reg)
		os.Exit(0)
	}

	ext := extractor.New(extractor.Options{
		OCREnabled: cfg.OCR.Enabled,
		OCR: extractor.OCR{
			DPI:      cfg.OCR.DPI,
			Lang:     cfg.OCR.Lang,
			Timeout:  cfg.OCR.Timeout,
			MinChars: cfg.OCR.MinChars,
		},
	})
	conv := convert.New(reg, ext, parser.Options{Unresolved: cfg.Layouts.Unresolved, Debug: *debugFlag})

	if *serveFlag {
		if err := serve(ctx, conv, cfg, log); err != nil {
			fatalf("Server error: %v\n", err)
		}
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	out, err := writer.ForFormat(*formatFlag, *headerFlag)
	if err != nil {
		fatalf("%v\n", err)
	}

	inputFiles := flag.Args()
	if len(inputFiles) > 1 && *outputFlag != "" && !isDir(*outputFlag) {
		fatalf("-output must be a directory when converting %d files\n", len(inputFiles))
	}

	failed := 0
	for _, inputPath := range inputFiles {
		j := job{path: inputPath, layout: *layoutFlag, password: *passwordFlag, output: *outputFlag}
		if err := processFile(ctx, conv, out, j, *debugFlag); err != nil {
			red.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

type job struct {
	path     string
	layout   string
	password string
	output   string
}

func processFile(ctx context.Context, conv *convert.Converter, out writer.Writer, j job, debug bool) error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return fmt.Errorf("cannot read input: %w", err)
	}

	fmt.Printf("Processing: %s\n", j.path)

	ledger, err := conv.Convert(ctx, convert.Input{
		Source:   filepath.Base(j.path),
		Data:     data,
		Password: j.password,
		Layout:   j.layout,
	})
	switch {
	case errors.Is(err, extractor.ErrPasswordRequired):
		return fmt.Errorf("%w (use -password)", err)
	case err != nil:
		return err
	}

	if ledger.Layout != "" {
		fmt.Printf("  Layout: %s", ledger.Layout)
		if ledger.Institution != "" {
			fmt.Printf(" (%s)", ledger.Institution)
		}
		fmt.Println()
	}
	if len(ledger.Attempts) > 1 {
		fmt.Printf("  Tried: %s\n", strings.Join(ledger.Attempts, ", "))
	}
	fmt.Printf("  Found %d transaction(s)\n", len(ledger.Transactions))

	if len(ledger.Transactions) == 0 {
		yellow.Println("  Warning: No transactions found. The document may not match any known layout.")
		yellow.Println("  Try naming the layout with -layout, see -list-layouts.")
	}
	for _, t := range ledger.Transactions {
		if t.Ambiguous {
			yellow.Printf("  Warning: %s %q has both a withdrawal and a deposit\n", t.Date, t.Description)
		}
	}
	if debug {
		for _, l := range ledger.DebugLines {
			fmt.Fprintf(os.Stderr, "  p%d:%d %-12s %-24s %s\n", l.Page, l.Line, l.Result, l.Method, l.Text)
		}
	}

	outPath := outputPath(j.path, j.output, out.Extension())
	if err := writer.WriteToFile(out, outPath, ledger); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	green.Printf("  Output: %s\n", outPath)
	return nil
}

// outputPath derives the output file from the input name, placing it inside
// output when that is a directory.
func outputPath(input, output, ext string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ext
	switch {
	case output == "":
		return filepath.Join(filepath.Dir(input), base)
	case isDir(output):
		return filepath.Join(output, base)
	}
	return output
}

func isDir(path string) bool {
	if strings.HasSuffix(path, string(os.PathSeparator)) {
		os.MkdirAll(path, 0o755)
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func listLayouts(reg *layout.Registry) {
	fmt.Printf("%-18s %-8s %-8s %s\n", "NAME", "SOURCE", "CURRENCY", "INSTITUTION")
	for _, d := range reg.All() {
		fmt.Printf("%-18s %-8s %-8s %s\n", d.Name, d.Source, d.Currency, d.Institution)
	}
	fmt.Printf("%-18s %-8s %-8s %s\n", convert.SpreadsheetLayout, "grid", "", "CSV and XLSX exports")
}

func serve(ctx context.Context, conv *convert.Converter, cfg *config.Config, log zerolog.Logger) error {
	app := api.NewApp(api.NewHandler(conv, version), log, cfg.Server.MaxUploadBytes())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("addr", addr).Str("version", version).Msg("listening")
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func fatalf(format string, args ...interface{}) {
	red.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
