package models

import "time"

// AuditConfig controls the generation audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// GenerationRecord is one audited external generation call.
type GenerationRecord struct {
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"` // analyze, speech or image
	Model     string    `json:"model"`
	Status    string    `json:"status"` // ok or error
	ErrorKind string    `json:"error_kind,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationStat is an aggregate count of generation calls per
// operation and day.
type GenerationStat struct {
	Operation string `json:"operation"`
	Day       string `json:"day"`
	Count     int64  `json:"count"`
}
