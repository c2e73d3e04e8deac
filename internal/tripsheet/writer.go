package tripsheet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteJSON stores the sheet's JSON artifact in outputDir, next to the
// stored trip-sheet PDF, named after the source file. Returns the
// artifact's file name.
func WriteJSON(outputDir string, s Sheet) (string, error) {
	base := strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName)) + ".json"
	b, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal trip sheet %s: %w", s.FileName, err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, base), b, 0o644); err != nil {
		return "", fmt.Errorf("write trip sheet json %s: %w", base, err)
	}
	return base, nil
}
