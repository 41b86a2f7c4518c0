package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/archlens/archlens/pkg/genai"
	"github.com/archlens/archlens/pkg/models"
)

// Config holds all ArchLens configuration.
type Config struct {
	Listen  string             `yaml:"listen"`
	DBPath  string             `yaml:"db_path"`
	Cache   CacheConfig        `yaml:"cache"`
	TTS     TTSConfig          `yaml:"tts"`
	History HistoryConfig      `yaml:"history"`
	GenAI   genai.Config       `yaml:"genai"`
	Audit   models.AuditConfig `yaml:"audit"`
}

// CacheConfig controls the artifact caches and their shared store.
type CacheConfig struct {
	DBPath   string `yaml:"db_path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// TTSConfig controls speech synthesis.
type TTSConfig struct {
	ChunkLimit   int    `yaml:"chunk_limit"`
	DefaultVoice string `yaml:"default_voice"`
	DefaultStyle string `yaml:"default_style"`
}

// HistoryConfig controls the analysis history.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "archlens.db",
		Cache: CacheConfig{
			DBPath:   "archlens_cache.db",
			MaxBytes: 50 << 20,
		},
		TTS: TTSConfig{
			ChunkLimit:   4000,
			DefaultVoice: "Puck",
			DefaultStyle: "professional",
		},
		History: HistoryConfig{
			MaxEntries: 10,
		},
		GenAI: genai.Config{
			BaseURL:        "https://generativelanguage.googleapis.com",
			APIKey:         "${GEMINI_API_KEY}",
			AnalysisModels: []string{"gemini-2.5-pro", "gemini-2.0-flash"},
			SpeechModel:    "gemini-2.5-flash-preview-tts",
			ImageModel:     "imagen-4.0-generate-001",
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "archlens_audit.db",
			RetentionDays: 90,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// The default API key reference is itself an env expansion.
	cfg.GenAI.APIKey = os.ExpandEnv(cfg.GenAI.APIKey)

	return cfg, nil
}
