package constants

// Canonical field names used across extraction, merge and reporting.
const (
	FieldKind     = "invoice_kind"
	FieldNumber   = "invoice_number"
	FieldAmount   = "amount"
	FieldDate     = "invoice_date"
	FieldCategory = "category"
	FieldCurrency = "currency"
)

// RequiredFields are the fields that must be resolved for an extraction
// to count as complete. Anything else missing yields Incomplete, not a
// fallback trigger on its own.
var RequiredFields = []string{FieldNumber, FieldAmount}

// InvoiceKind is the normalized invoice class (VAT ordinary vs special).
type InvoiceKind string

const (
	KindOrdinary InvoiceKind = "普票"
	KindSpecial  InvoiceKind = "专票"
)

// DefaultCurrency is assumed when neither extraction pass resolves one.
const DefaultCurrency = "CNY"
