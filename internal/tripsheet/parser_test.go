package tripsheet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSheet = `滴滴出行 行程单
行程起止日期：2024-04-10 至 2024-04-12
序号 上车时间 起点 终点 金额
1 04-10 08:31 莲花山公园 科技园 23.50
2 04-11 19:02 科技园 莲花山公园 22.10
合计 45.60 元
`

func TestParseTripSheet(t *testing.T) {
	s := Parse("trip.pdf", sampleSheet)

	assert.Equal(t, "trip.pdf", s.FileName)
	assert.InDelta(t, 45.60, s.TotalAmount, 0.001)
	require.Len(t, s.Trips, 2)
	assert.Equal(t, Trip{Date: "2024/04/10", Origin: "莲花山公园", Destination: "科技园", Amount: 23.50}, s.Trips[0])
	assert.Equal(t, "2024/04/11", s.Trips[1].Date)
}

func TestParseWithoutDateRangeUsesCurrentYear(t *testing.T) {
	s := Parse("t.pdf", "1 04-10 08:31 甲地 乙地 9.90\n合计 9.90 元")
	require.Len(t, s.Trips, 1)
	assert.Regexp(t, `^\d{4}/04/10$`, s.Trips[0].Date)
}

func TestParseUnrecognizedTextYieldsEmptySheet(t *testing.T) {
	s := Parse("t.pdf", "发票号码：12345678")
	assert.Zero(t, s.TotalAmount)
	assert.Empty(t, s.Trips)
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	s := Parse("trip.pdf", sampleSheet)

	name, err := WriteJSON(dir, s)
	require.NoError(t, err)
	assert.Equal(t, "trip.json", name)

	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got Sheet
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, s, got)
}
