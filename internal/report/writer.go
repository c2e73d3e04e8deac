package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// WriteJSON renders the batch as the invoice_data.json artifact: one
// object per successfully routed invoice.
func WriteJSON(path string, r BatchReport) error {
	b, err := json.MarshalIndent(r.Records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report json: %w", err)
	}
	return nil
}

// WriteXLSX renders the batch as a workbook with one row per invoice
// and a computed grand total.
func WriteXLSX(path string, r BatchReport) error {
	f := excelize.NewFile()
	const sheet = "Invoices"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headers := []string{"File Name", "Invoice Number", "Kind", "Category", "Invoice Date", "Currency", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	write := func(col, row int, v any) error {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		return f.SetCellValue(sheet, cell, v)
	}

	row := 2
	for _, rec := range r.Records {
		cols := []any{rec.FileName, rec.InvoiceNumber, rec.InvoiceKind, rec.Category, rec.InvoiceDate, rec.Currency}
		for i, v := range cols {
			if err := write(i+1, row, v); err != nil {
				return err
			}
		}
		if amt, ok := parseAmount(rec.Amount); ok {
			if err := write(len(headers), row, amt); err != nil {
				return err
			}
		}
		row++
	}

	if err := write(len(headers)-1, row, "合计"); err != nil {
		return err
	}
	if err := write(len(headers), row, r.Total()); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return f.Close()
}
