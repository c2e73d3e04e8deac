package constants

// Stage selects how far the pipeline runs. Each stage is a strict
// prefix of the next one.
type Stage string

const (
	StageText     Stage = "text"     // text-layer extraction only
	StageFallback Stage = "fallback" // text extraction + vision fallback
	StageRename   Stage = "rename"   // + dedup and file routing
	StageReport   Stage = "report"   // + JSON summary and XLSX report (full run)
)

// Stages in ascending order.
var Stages = []Stage{StageText, StageFallback, StageRename, StageReport}

// ParseStage returns the stage for s, or StageReport if s is empty.
func ParseStage(s string) (Stage, bool) {
	if s == "" {
		return StageReport, true
	}
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// AtLeast reports whether stage s includes stage min.
func (s Stage) AtLeast(min Stage) bool {
	rank := func(st Stage) int {
		for i, v := range Stages {
			if v == st {
				return i
			}
		}
		return -1
	}
	return rank(s) >= rank(min)
}
