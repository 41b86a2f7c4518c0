package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/archlens/archlens/pkg/cache"
	"github.com/archlens/archlens/pkg/cache/sqlite"
	"github.com/archlens/archlens/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts per namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, diagram, cleanup, err := openCaches(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("Audio:   %d entries\n", audio.Stats().Entries)
			fmt.Printf("Diagram: %d entries\n", diagram.Stats().Entries)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, diagram, cleanup, err := openCaches(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := audio.Clear(); err != nil {
				return err
			}
			if err := diagram.Clear(); err != nil {
				return err
			}
			fmt.Println("All cached artifacts cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "archlens.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func openCaches(configPath string) (*cache.Cache[string], *cache.Cache[[]string], func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := sqlite.New(cfg.Cache.DBPath, cfg.Cache.MaxBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open cache store: %w", err)
	}

	audio := cache.New[string](store, "tts_audio")
	diagram := cache.New[[]string](store, "arch_diagram")
	return audio, diagram, func() { _ = store.Close() }, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
