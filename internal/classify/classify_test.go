package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTripSheetSignals(t *testing.T) {
	cases := []struct {
		name string
		text string
		want DocType
	}{
		{"didi trip sheet", "滴滴出行 行程单 行程起止日期: 2024-04-01", TripSheet},
		{"english marker", "DiDi TRIP TABLE 2024", TripSheet},
		{"both markers", "行程单 TRIP TABLE", TripSheet},
		{"ordinary invoice", "电子发票（普通发票） 发票号码: 24317000000123456789", Invoice},
		{"empty text", "", Invoice},
		{"marker embedded mid-text", "abc行程单xyz", TripSheet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.text))
		})
	}
}
