package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/convert"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
)

const sampleCSV = "Date,Description,Debit,Credit\n15/01/2024,Grocery Store,45.67,\n16/01/2024,Salary,,5000.00\n"

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	reg, err := layout.LoadEmbedded()
	require.NoError(t, err)
	conv := convert.New(reg, extractor.New(extractor.Options{}), parser.Options{})
	return NewApp(NewHandler(conv, "test"), zerolog.Nop(), 4<<20)
}

func upload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response) ConvertResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out ConvertResponse
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}

	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
}

func TestLayoutsEndpoint(t *testing.T) {
	resp, err := setupTestApp(t).Test(httptest.NewRequest("GET", "/api/layouts", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var layouts []LayoutInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&layouts))
	names := make([]string, len(layouts))
	for i, l := range layouts {
		names[i] = l.Name
	}
	assert.Contains(t, names, "universal")
	assert.Contains(t, names, "rakbank")
}

func TestConvertEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(upload(t, "", nil, map[string]string{"layout": "hsbc"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadRequest, decode(t, resp).Code)
}

func TestConvertEndpointJSON(t *testing.T) {
	resp, err := setupTestApp(t).Test(upload(t, "statement.csv", []byte(sampleCSV), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	out := decode(t, resp)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, "spreadsheet:debit_credit", out.Layout)
	assert.Equal(t, models.Columns, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, []string{"15-01-2024", "45.67", "", "", "Grocery Store", ""}, out.Rows[0])
	require.NotNil(t, out.Totals)
	assert.Equal(t, "AED", out.Totals.Currency)
	assert.Equal(t, "45.67", out.Totals.Withdrawals)
	assert.Equal(t, "5000.00", out.Totals.Deposits)
	assert.Equal(t, 2, out.Totals.Count)
	assert.Contains(t, out.CSV, "Date,Withdrawals,Deposits,Payee,Description,Reference Number")
	assert.Empty(t, out.DebugLines)
}

func TestConvertEndpointCSVDownload(t *testing.T) {
	resp, err := setupTestApp(t).Test(upload(t, "jan.csv", []byte(sampleCSV), map[string]string{"format": "csv", "header": "false"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="jan.csv"`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t,
		"Date,Withdrawals,Deposits,Payee,Description,Reference Number\n"+
			"15-01-2024,45.67,,,Grocery Store,\n"+
			"16-01-2024,,5000.00,,Salary,\n",
		string(body))
}

func TestConvertEndpointXLSXDownload(t *testing.T) {
	resp, err := setupTestApp(t).Test(upload(t, "jan.csv", []byte(sampleCSV), map[string]string{"format": "xlsx"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Ledger", "E2")
	require.NoError(t, err)
	assert.Equal(t, "Grocery Store", v)
}

func TestConvertEndpointErrors(t *testing.T) {
	locked := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 16)...)
	locked = append(locked, []byte("E\x00n\x00c\x00r\x00y\x00p\x00t\x00e\x00d\x00P\x00a\x00c\x00k\x00a\x00g\x00e\x00")...)

	tests := []struct {
		name   string
		file   string
		data   []byte
		fields map[string]string
		status int
		code   string
	}{
		{"encrypted workbook", "locked.xlsx", locked, nil, fiber.StatusUnauthorized, CodePasswordRequired},
		{"corrupt pdf", "broken.pdf", []byte("%PDF-1.4\ngarbage"), nil, fiber.StatusUnprocessableEntity, CodeUnsupportedFile},
		{"unknown layout", "a.csv", []byte(sampleCSV), map[string]string{"layout": "nope"}, fiber.StatusBadRequest, CodeUnknownLayout},
		{"bad format", "a.csv", []byte(sampleCSV), map[string]string{"format": "pdf"}, fiber.StatusBadRequest, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := setupTestApp(t).Test(upload(t, tt.file, tt.data, tt.fields))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			out := decode(t, resp)
			assert.False(t, out.Success)
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestTotalsFallsBackToDefaultCurrency(t *testing.T) {
	got := totals(&models.Ledger{Currency: "XYZ"})
	assert.Equal(t, DefaultCurrency, got.Currency)
	assert.Equal(t, "0.00", got.Withdrawals)

	got = totals(&models.Ledger{Currency: "gbp"})
	assert.Equal(t, "GBP", got.Currency)
	assert.Equal(t, "£0.00", got.DepositsDisplay)
}
