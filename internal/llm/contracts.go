package llm

import "context"

// InvoiceFields is the normalized shape we want from the vision model.
// Fields the model cannot determine are left empty.
type InvoiceFields struct {
	InvoiceKind   string `json:"invoice_kind,omitempty"`   // 普票 / 专票
	InvoiceNumber string `json:"invoice_number,omitempty"` // digits for domestic invoices, but not enforced
	Amount        string `json:"amount,omitempty"`         // tax-inclusive total, decimal string
	InvoiceDate   string `json:"invoice_date,omitempty"`   // YYYY-MM-DD
	Category      string `json:"category,omitempty"`       // main goods/service name
	Currency      string `json:"currency,omitempty"`       // ISO 4217
}

// ExtractRequest carries one document's first page into the vision call.
type ExtractRequest struct {
	ImagePNG     []byte   // rasterized first page
	FilenameHint string   // original file name, shown to the model
	Missing      []string // field names the text layer could not resolve
}

// VisionExtractor is the interface the orchestrator depends on.
type VisionExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (InvoiceFields, []byte /*rawJSON*/, error)
}
