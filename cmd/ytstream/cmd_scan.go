/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snipersonu/ytstreamm1/internal/config"
	"github.com/snipersonu/ytstreamm1/internal/db"
	"github.com/snipersonu/ytstreamm1/internal/media"
)

var scanDryRun bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile the media root against the asset registry",
	Long: `Walk the media root and compare it against the asset table.

Untracked media files are adopted as assets unless --dry-run is given.
Asset rows whose file has vanished are reported as missing either way.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Report differences without adopting files")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if cfg.StorageBackend != config.StorageFilesystem {
		return fmt.Errorf("scan requires the filesystem storage backend, got %q", cfg.StorageBackend)
	}

	logger.Info().Str("media_root", cfg.MediaRoot).Bool("dry_run", scanDryRun).Msg("starting media scan")

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	scanner := media.NewScanner(database, cfg.MediaRoot, logger)
	report, err := scanner.ScanDisk(context.Background(), !scanDryRun)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("\nScan Complete!\n")
	fmt.Printf("  Files found:  %d\n", report.TotalFiles)
	fmt.Printf("  Tracked:      %d\n", report.Tracked)
	if scanDryRun {
		fmt.Printf("  Untracked:    %d (run without --dry-run to adopt)\n", report.Untracked)
	} else {
		fmt.Printf("  Adopted:      %d\n", report.Adopted)
	}
	fmt.Printf("  Missing rows: %d\n", report.Missing)
	if report.Errors > 0 {
		fmt.Printf("  Errors:       %d\n", report.Errors)
	}

	return nil
}
