// Package api exposes the converter over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/insightdelivered/statement-ledger/internal/convert"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/writer"
)

// Machine-readable error codes.
const (
	CodePasswordRequired  = "password_required"
	CodePasswordIncorrect = "password_incorrect"
	CodeUnsupportedFile   = "unsupported_file"
	CodeUnknownLayout     = "unknown_layout"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal_error"
)

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	Code         string               `json:"code,omitempty"`
	RequestID    string               `json:"requestId"`
	Layout       string               `json:"layout,omitempty"`
	Institution  string               `json:"institution,omitempty"`
	Attempts     []string             `json:"attempts,omitempty"`
	Columns      []string             `json:"columns,omitempty"`
	Rows         [][]string           `json:"rows,omitempty"`
	Transactions []models.Transaction `json:"transactions"`
	CSV          string               `json:"csv,omitempty"`
	Totals       *Totals              `json:"totals,omitempty"`
	Version      string               `json:"version,omitempty"`
	DebugLines   []models.DebugLine   `json:"debugLines,omitempty"`
}

// LayoutInfo describes one registered layout.
type LayoutInfo struct {
	Name        string `json:"name"`
	Institution string `json:"institution"`
	Family      string `json:"family,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Source      string `json:"source"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	conv    *convert.Converter
	version string
}

// NewHandler returns handlers backed by conv.
func NewHandler(conv *convert.Converter, version string) *Handler {
	return &Handler{conv: conv, version: version}
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.HandleHealth)
	api.Get("/layouts", h.HandleLayouts)
	api.Post("/convert", h.HandleConvert)
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.version,
	})
}

func (h *Handler) HandleLayouts(c *fiber.Ctx) error {
	reg := h.conv.Registry()
	out := make([]LayoutInfo, 0, len(reg.All()))
	for _, d := range reg.All() {
		out = append(out, LayoutInfo{
			Name:        d.Name,
			Institution: d.Institution,
			Family:      d.Family,
			Currency:    d.Currency,
			Source:      string(d.Source),
		})
	}
	return c.JSON(out)
}

// HandleConvert accepts a multipart upload: "file" (required), "layout",
// "password", "format" (json, csv or xlsx), "header" and "debug".
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	requestID := uuid.NewString()
	log := logger.FromContext(c.UserContext()).With().Str("request_id", requestID).Logger()
	ctx := logger.WithContext(c.UserContext(), log)
	c.Set("X-Request-ID", requestID)

	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, requestID, CodeBadRequest, "No file uploaded. Use form field 'file'.")
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, requestID, CodeBadRequest, "Failed to read uploaded file.")
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, requestID, CodeBadRequest, "Failed to read uploaded file.")
	}

	format := strings.ToLower(c.FormValue("format", "json"))
	includeHeader := c.FormValue("header") != "false"
	var out writer.Writer
	if format != "json" {
		if out, err = writer.ForFormat(format, includeHeader); err != nil {
			return writeError(c, fiber.StatusBadRequest, requestID, CodeBadRequest, err.Error())
		}
	}

	ledger, err := h.conv.Convert(ctx, convert.Input{
		Source:   fh.Filename,
		Data:     data,
		Password: c.FormValue("password"),
		Layout:   c.FormValue("layout"),
	})
	if err != nil {
		status, code := classify(err)
		log.Warn().Err(err).Str("file", fh.Filename).Str("code", code).Msg("conversion failed")
		return writeError(c, status, requestID, code, err.Error())
	}
	log.Info().
		Str("file", fh.Filename).
		Str("layout", ledger.Layout).
		Int("transactions", len(ledger.Transactions)).
		Msg("conversion finished")

	if out != nil {
		return download(c, out, ledger)
	}
	return c.JSON(h.response(ctx, requestID, ledger, includeHeader, c.FormValue("debug") == "true"))
}

func (h *Handler) response(ctx context.Context, requestID string, ledger *models.Ledger, includeHeader, debug bool) ConvertResponse {
	txns := ledger.Transactions
	if txns == nil {
		txns = []models.Transaction{}
	}
	rows := make([][]string, len(txns))
	for i, t := range txns {
		rows[i] = t.Record()
	}

	var csvBuf bytes.Buffer
	if err := (&writer.CSVWriter{IncludeHeader: includeHeader}).Write(&csvBuf, ledger); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("CSV generation failed")
	}

	t := totals(ledger)
	resp := ConvertResponse{
		Success:      true,
		RequestID:    requestID,
		Layout:       ledger.Layout,
		Institution:  ledger.Institution,
		Attempts:     ledger.Attempts,
		Columns:      models.Columns,
		Rows:         rows,
		Transactions: txns,
		CSV:          csvBuf.String(),
		Totals:       &t,
		Version:      h.version,
	}
	if debug {
		resp.DebugLines = ledger.DebugLines
	}
	return resp
}

func download(c *fiber.Ctx, w writer.Writer, ledger *models.Ledger) error {
	var buf bytes.Buffer
	if err := w.Write(&buf, ledger); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "", CodeInternal, fmt.Sprintf("Output generation failed: %v", err))
	}
	name := strings.TrimSuffix(filepath.Base(ledger.Source), filepath.Ext(ledger.Source))
	if name == "" || name == "." {
		name = "ledger"
	}
	c.Set(fiber.HeaderContentType, w.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+w.Extension()))
	return c.Send(buf.Bytes())
}

// classify maps a conversion error onto a status and machine code.
func classify(err error) (int, string) {
	var unknown *parser.ErrUnknownLayout
	switch {
	case errors.Is(err, extractor.ErrPasswordRequired):
		return fiber.StatusUnauthorized, CodePasswordRequired
	case errors.Is(err, extractor.ErrPasswordIncorrect):
		return fiber.StatusUnauthorized, CodePasswordIncorrect
	case errors.Is(err, extractor.ErrUnreadable):
		return fiber.StatusUnprocessableEntity, CodeUnsupportedFile
	case errors.As(err, &unknown):
		return fiber.StatusBadRequest, CodeUnknownLayout
	}
	return fiber.StatusInternalServerError, CodeInternal
}

func writeError(c *fiber.Ctx, status int, requestID, code, msg string) error {
	return c.Status(status).JSON(ConvertResponse{
		Success:   false,
		Error:     msg,
		Code:      code,
		RequestID: requestID,
	})
}
