package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/archlens/archlens/pkg/history"
	"github.com/archlens/archlens/pkg/models"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the analysis history",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, cleanup, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := hist.List(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatHistory(entries))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, cleanup, err := openHistory(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := hist.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "archlens.yaml", "path to config file")
	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func openHistory(configPath string) (*history.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	hist, err := history.New(cfg.DBPath, cfg.History.MaxEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("open history db: %w", err)
	}
	return hist, func() { _ = hist.Close() }, nil
}

func formatHistory(entries []models.HistoryEntry) string {
	if len(entries) == 0 {
		return "No analyses recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-20s %-40s %s\n", "ID", "TIME", "FILES", "SUMMARY")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, e := range entries {
		summary := e.Summary
		if len(summary) > 40 {
			summary = summary[:37] + "..."
		}
		fmt.Fprintf(&b, "%-6d %-20s %-40s %s\n",
			e.ID,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			strings.Join(e.Files, ", "),
			summary)
	}
	return b.String()
}
