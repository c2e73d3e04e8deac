// Package extract recovers structured invoice fields. The text-layer
// pass applies fixed pattern rules; absence of a match is a normal
// outcome, never an error.
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mingyu-ho/invoice-pipeline/constants"
)

// Pattern rules for the new-style electronic VAT invoices. Paper
// invoice numbers are 8 digits, electronic ones about 20, hence the
// 8-20 digit range.
var (
	reKind   = regexp.MustCompile(`(普通|专用)发票`)
	reNumber = regexp.MustCompile(`发票号码[:：\s]*([0-9]{8,20})`)
	reAmount = regexp.MustCompile(`小写[）)\s]*[¥￥]?([0-9]+(?:\.[0-9]{2})?)`)
	reDate   = regexp.MustCompile(`开票日期[:：\s]*([0-9]{4})\s*年\s*([0-9]{1,2})\s*月\s*([0-9]{1,2})\s*日`)

	// Category: prefer the *starred* service name, fall back to the
	// column label prefix.
	reCategoryStar   = regexp.MustCompile(`\*([^*]{1,30})\*`)
	reCategoryColumn = regexp.MustCompile(`(?:项目名称|货物或应税劳务、服务名称)[\s:：]*([^\s]+)`)

	reHan   = regexp.MustCompile(`[\p{Han}]`)
	reDigit = regexp.MustCompile(`[0-9]`)
)

// headerWords are table-header fragments that disqualify a candidate
// category match.
var headerWords = []string{"规格", "型号", "单位", "数量", "单价", "金额", "税率", "税额"}

// FromText applies the pattern rules to the document's text layer.
// filenameHint (the original file name, possibly empty) is the last
// resort for the category. Every resolved field carries FromTextLayer
// provenance.
func FromText(text, filenameHint string) Fields {
	var f Fields

	if m := reKind.FindStringSubmatch(text); m != nil {
		f.Set(constants.FieldKind, normalizeKind(m[1]), FromTextLayer)
	}
	if m := reNumber.FindStringSubmatch(text); m != nil {
		f.Set(constants.FieldNumber, m[1], FromTextLayer)
	}
	if m := reAmount.FindStringSubmatch(text); m != nil {
		f.Set(constants.FieldAmount, m[1], FromTextLayer)
		// The 小写 amount line only appears on domestic CNY invoices.
		f.Set(constants.FieldCurrency, constants.DefaultCurrency, FromTextLayer)
	}
	if m := reDate.FindStringSubmatch(text); m != nil {
		f.Set(constants.FieldDate, fmt.Sprintf("%s-%s-%s", m[1], pad2(m[2]), pad2(m[3])), FromTextLayer)
	}

	if cat := categoryFromText(text); cat != "" {
		f.Set(constants.FieldCategory, cat, FromTextLayer)
	} else if cat := categoryFromFilename(filenameHint); cat != "" {
		f.Set(constants.FieldCategory, cat, FromTextLayer)
	}

	return f
}

// normalizeKind maps the captured 普通/专用 onto the two canonical labels.
func normalizeKind(captured string) string {
	if strings.Contains(captured, "专用") {
		return string(constants.KindSpecial)
	}
	return string(constants.KindOrdinary)
}

func categoryFromText(text string) string {
	if m := reCategoryStar.FindStringSubmatch(text); m != nil {
		cat := strings.TrimSpace(m[1])
		if len(cat) > 0 && len([]rune(cat)) <= 30 {
			return cat
		}
	}
	if m := reCategoryColumn.FindStringSubmatch(text); m != nil {
		cat := strings.TrimSpace(m[1])
		if len(cat) == 0 || len([]rune(cat)) > 30 {
			return ""
		}
		for _, w := range headerWords {
			if strings.Contains(cat, w) {
				return ""
			}
		}
		return cat
	}
	return ""
}

// categoryFromFilename guesses a category from underscore-separated
// name parts like "8_信息技术服务_4200元.pdf".
func categoryFromFilename(name string) string {
	if name == "" {
		return ""
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return ""
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" || !reHan.MatchString(p) || reDigit.MatchString(p) {
			continue
		}
		if len([]rune(p)) > 15 {
			continue
		}
		if strings.Contains(p, "票") || strings.Contains(p, "元") ||
			strings.Contains(p, "规格") || strings.Contains(p, "型号") ||
			strings.Contains(strings.ToLower(p), "pdf") {
			continue
		}
		return p
	}
	return ""
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
