package models

// Field is a logical column of a statement row.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldReference   Field = "reference"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldAmount      Field = "amount" // single signed or marker-bearing amount
	FieldBalance     Field = "balance"
	FieldSkip        Field = "skip" // recognised but ignored, e.g. value date
)

// Fields lists every field in display order.
var Fields = []Field{
	FieldDate, FieldDescription, FieldReference,
	FieldDebit, FieldCredit, FieldAmount, FieldBalance, FieldSkip,
}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// IsAmount reports whether f carries a monetary value.
func (f Field) IsAmount() bool {
	return f == FieldDebit || f == FieldCredit || f == FieldAmount || f == FieldBalance
}
