package spreadsheet

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

func newReader(t *testing.T) *Reader {
	t.Helper()
	reg, err := layout.LoadEmbedded()
	require.NoError(t, err)
	return New(reg.Spreadsheets())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReadCSVConventions(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		layout string
		want   []models.Transaction
	}{
		{
			name: "debit and credit columns",
			input: "Date,Description,Debit,Credit,Balance\n" +
				"15/01/2024,Grocery Store,45.67,,954.33\n" +
				"16/01/2024,Salary,,5000.00,5954.33\n",
			layout: "spreadsheet:debit_credit",
			want: []models.Transaction{
				{Date: "15-01-2024", Withdrawals: dec("45.67"), Description: "Grocery Store"},
				{Date: "16-01-2024", Deposits: dec("5000"), Description: "Salary"},
			},
		},
		{
			name: "withdrawal and deposit columns",
			input: "Transaction Date,Narration,Withdrawals,Deposits,Reference\n" +
				"01-Feb-2024,ATM CASH,\"1,000.00\",,FT123\n" +
				"02-Feb-2024,REFUND,,25.50,FT124\n",
			layout: "spreadsheet:withdrawal_deposit",
			want: []models.Transaction{
				{Date: "01-02-2024", Withdrawals: dec("1000"), Description: "ATM CASH", Reference: "FT123"},
				{Date: "02-02-2024", Deposits: dec("25.5"), Description: "REFUND", Reference: "FT124"},
			},
		},
		{
			name: "signed amount column",
			input: "Date,Description,Amount\n" +
				"2024-03-01,Coffee,-4.50\n" +
				"2024-03-02,Transfer in,100.00\n",
			layout: "spreadsheet:basic",
			want: []models.Transaction{
				{Date: "01-03-2024", Withdrawals: dec("4.5"), Description: "Coffee"},
				{Date: "02-03-2024", Deposits: dec("100"), Description: "Transfer in"},
			},
		},
		{
			name: "debit column without credit uses the signed amount",
			input: "Date,Description,Debit,Amount\n" +
				"2024-03-01,Coffee,4.50,-4.50\n" +
				"2024-03-02,Refund,,100.00\n",
			layout: "spreadsheet:basic",
			want: []models.Transaction{
				{Date: "01-03-2024", Withdrawals: dec("4.5"), Description: "Coffee"},
				{Date: "02-03-2024", Deposits: dec("100"), Description: "Refund"},
			},
		},
		{
			name: "semicolon delimiter and header below metadata",
			input: "Account statement\nAccount;12345\n\n" +
				"Date;Description;Amount;Balance\n" +
				"05.04.2024;Rent;-1200,00;800,00\n",
			layout: "spreadsheet:basic",
			want: []models.Transaction{
				{Date: "05-04-2024", Withdrawals: dec("1200"), Description: "Rent"},
			},
		},
	}

	r := newReader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, err := r.Read(context.Background(), "test.csv", []byte(tt.input), "")
			require.NoError(t, err)
			assert.Equal(t, tt.layout, ledger.Layout)
			require.Len(t, ledger.Transactions, len(tt.want))
			for i, want := range tt.want {
				got := ledger.Transactions[i]
				assert.Equal(t, want.Date, got.Date)
				assert.True(t, want.Withdrawals.Equal(got.Withdrawals), "row %d withdrawals %s", i, got.Withdrawals)
				assert.True(t, want.Deposits.Equal(got.Deposits), "row %d deposits %s", i, got.Deposits)
				assert.Equal(t, want.Description, got.Description)
				assert.Equal(t, want.Reference, got.Reference)
				assert.Empty(t, got.Payee)
			}
		})
	}
}

func TestReadCSVSkipsUndatedAndZeroRows(t *testing.T) {
	input := "Date,Description,Debit,Credit\n" +
		"Opening balance,,,\n" +
		"10/01/2024,Nothing moved,0.00,0.00\n" +
		"11/01/2024,Fee,2.00,\n"
	ledger, err := newReader(t).Read(context.Background(), "x.csv", []byte(input), "")
	require.NoError(t, err)
	require.Len(t, ledger.Transactions, 1)
	assert.Equal(t, "Fee", ledger.Transactions[0].Description)
}

func TestReadCSVLatin1(t *testing.T) {
	input := []byte("Date,Description,Debit,Credit\n12/01/2024,Caf\xe9 Paris,3.20,\n")
	ledger, err := newReader(t).Read(context.Background(), "latin1.csv", input, "")
	require.NoError(t, err)
	require.Len(t, ledger.Transactions, 1)
	assert.Equal(t, "Café Paris", ledger.Transactions[0].Description)
}

func TestReadWithoutHeaderIsEmpty(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	ledger, err := newReader(t).Read(context.Background(), "plain.csv", []byte(input), "")
	require.NoError(t, err)
	assert.Empty(t, ledger.Transactions)
	assert.Empty(t, ledger.Layout)
}

func TestReadNarrowInputIsUnreadable(t *testing.T) {
	_, err := newReader(t).Read(context.Background(), "notes.txt", []byte("just some text\nwith lines\n"), "")
	assert.ErrorIs(t, err, extractor.ErrUnreadable)
}

func TestReadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Bank export"},
		{"Date", "Description", "Debit", "Credit"},
		{45306, "Supermarket", 12.5, nil},
		{"16/01/2024", "Salary", nil, 3000},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.True(t, IsWorkbook(buf.Bytes()))

	ledger, err := newReader(t).Read(context.Background(), "book.xlsx", buf.Bytes(), "")
	require.NoError(t, err)
	require.Len(t, ledger.Transactions, 2)
	assert.Equal(t, "15-01-2024", ledger.Transactions[0].Date)
	assert.True(t, dec("12.5").Equal(ledger.Transactions[0].Withdrawals))
	assert.Equal(t, "16-01-2024", ledger.Transactions[1].Date)
	assert.True(t, dec("3000").Equal(ledger.Transactions[1].Deposits))
}

func TestReadEncryptedWorkbookNeedsPassword(t *testing.T) {
	data := append(append([]byte{}, oleMagic...), make([]byte, 64)...)
	data = append(data, encryptedPackage...)

	_, err := newReader(t).Read(context.Background(), "locked.xlsx", data, "")
	assert.ErrorIs(t, err, extractor.ErrPasswordRequired)

	legacy := append(append([]byte{}, oleMagic...), make([]byte, 64)...)
	_, err = newReader(t).Read(context.Background(), "old.xls", legacy, "")
	assert.ErrorIs(t, err, extractor.ErrUnreadable)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		lines []string
		want  rune
	}{
		{[]string{"a,b,c"}, ','},
		{[]string{"title", "a;b;c;d"}, ';'},
		{[]string{"a\tb\tc"}, '\t'},
		{[]string{"a|b|c"}, '|'},
		{[]string{"nothing here"}, 0},
	}
	for _, tt := range tests {
		got, _ := detectDelimiter(tt.lines)
		assert.Equal(t, tt.want, got, "lines %q", tt.lines)
	}
}

func TestMatchColumnsExactAndContains(t *testing.T) {
	set := layout.HeaderSet{
		Name: "t",
		Columns: map[models.Field][]string{
			models.FieldDate:        {"transaction date", "=date"},
			models.FieldDescription: {"description"},
			models.FieldDebit:       {"=debit"},
		},
	}
	cols := matchColumns([]string{"value date", "date", "long description", "debit amount", "debit"}, set)
	assert.Equal(t, 1, cols[models.FieldDate])
	assert.Equal(t, 2, cols[models.FieldDescription])
	assert.Equal(t, 4, cols[models.FieldDebit])
}
