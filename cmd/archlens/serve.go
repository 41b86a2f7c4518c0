package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/archlens/archlens/pkg/assembler"
	"github.com/archlens/archlens/pkg/audit"
	"github.com/archlens/archlens/pkg/cache"
	"github.com/archlens/archlens/pkg/cache/sqlite"
	"github.com/archlens/archlens/pkg/config"
	"github.com/archlens/archlens/pkg/genai"
	"github.com/archlens/archlens/pkg/history"
	"github.com/archlens/archlens/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the analysis API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine; the environment may already be set.
			_ = godotenv.Load()

			cfg, err := config.Load(configPath)
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("config %s not found, using defaults", configPath)
				cfg = config.Default()
			} else if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := sqlite.New(cfg.Cache.DBPath, cfg.Cache.MaxBytes)
			if err != nil {
				return fmt.Errorf("init cache store: %w", err)
			}
			defer func() { _ = store.Close() }()

			audioCache := cache.New[string](store, "tts_audio")
			diagramCache := cache.New[[]string](store, "arch_diagram")

			hist, err := history.New(cfg.DBPath, cfg.History.MaxEntries)
			if err != nil {
				return fmt.Errorf("init history: %w", err)
			}
			defer func() { _ = hist.Close() }()

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			client := genai.NewClient(cfg.GenAI, &http.Client{Timeout: 5 * time.Minute})
			gen := audit.NewClient(client, auditor, cfg.GenAI)

			asm := assembler.New(gen, gen, audioCache, diagramCache, cfg.TTS.ChunkLimit)
			srv := server.New(cfg, gen, asm, hist, audioCache, diagramCache)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting archlens with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "archlens.yaml", "path to config file")
	return cmd
}
