package models

import "time"

// HistoryEntry records one completed analysis in the local history.
// Binary payloads are stripped from Result before persistence.
type HistoryEntry struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Files     []string       `json:"files"`
	Summary   string         `json:"summary"`
	Result    AnalysisResult `json:"result"`
}
