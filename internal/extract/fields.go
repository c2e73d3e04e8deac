package extract

import "github.com/mingyu-ho/invoice-pipeline/constants"

// Provenance records which extraction pass resolved a field.
type Provenance string

const (
	FromTextLayer   Provenance = "from_text_layer"
	FromOCRFallback Provenance = "from_ocr_fallback"
)

// Field is a single extracted value plus its origin. The zero value
// means "absent".
type Field struct {
	Value  string     `json:"value,omitempty"`
	Source Provenance `json:"source,omitempty"`
}

func (f Field) Present() bool { return f.Value != "" }

// Fields is the semantic record recovered from one document. Created
// empty by the text-layer pass, filled at most once more by the
// fallback pass; a field set by a previous pass is never overwritten.
type Fields struct {
	Kind     Field `json:"invoice_kind"`
	Number   Field `json:"invoice_number"`
	Amount   Field `json:"amount"`
	Date     Field `json:"invoice_date"`
	Category Field `json:"category"`
	Currency Field `json:"currency"`
}

// Set fills the named field if it is still absent and v is non-empty.
// Returns true if the field was written.
func (f *Fields) Set(name, v string, src Provenance) bool {
	dst := f.byName(name)
	if dst == nil || dst.Present() || v == "" {
		return false
	}
	*dst = Field{Value: v, Source: src}
	return true
}

func (f *Fields) byName(name string) *Field {
	switch name {
	case constants.FieldKind:
		return &f.Kind
	case constants.FieldNumber:
		return &f.Number
	case constants.FieldAmount:
		return &f.Amount
	case constants.FieldDate:
		return &f.Date
	case constants.FieldCategory:
		return &f.Category
	case constants.FieldCurrency:
		return &f.Currency
	}
	return nil
}

// Get returns the named field, or a zero Field for unknown names.
func (f *Fields) Get(name string) Field {
	if p := f.byName(name); p != nil {
		return *p
	}
	return Field{}
}

// Merge fills absent fields of f from other. Fields already present in
// f keep their value and provenance.
func (f *Fields) Merge(other Fields) {
	for _, name := range allFieldNames {
		o := other.Get(name)
		if o.Present() {
			f.Set(name, o.Value, o.Source)
		}
	}
}

var allFieldNames = []string{
	constants.FieldKind,
	constants.FieldNumber,
	constants.FieldAmount,
	constants.FieldDate,
	constants.FieldCategory,
	constants.FieldCurrency,
}

// Missing lists required fields that are still absent.
func (f *Fields) Missing() []string {
	var out []string
	for _, name := range constants.RequiredFields {
		if !f.Get(name).Present() {
			out = append(out, name)
		}
	}
	return out
}

// NeedsFallback reports whether the fallback pass should run: any
// required field absent, or the cheap-to-resolve kind/category still
// unknown.
func (f *Fields) NeedsFallback() bool {
	if len(f.Missing()) > 0 {
		return true
	}
	return !f.Kind.Present() || !f.Category.Present()
}
