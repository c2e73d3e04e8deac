package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured output constraint
// and also use it locally to validate the response. Every property is
// optional: the model omits what it cannot read off the page.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoice_kind": map[string]any{
				"type": "string",
				"enum": []string{"普票", "专票"},
			},
			"invoice_number": map[string]any{"type": "string", "minLength": 1},
			"amount": map[string]any{
				"type":    "string",
				"pattern": `^\d+(\.\d{1,2})?$`,
			},
			"invoice_date": map[string]any{
				"type":    "string",
				"pattern": `^\d{4}-\d{2}-\d{2}$`,
			},
			"category": map[string]any{"type": "string", "minLength": 1},
			"currency": map[string]any{
				"type":      "string",
				"minLength": 3,
				"maxLength": 3,
			},
		},
		"required": []string{},
	}
}
