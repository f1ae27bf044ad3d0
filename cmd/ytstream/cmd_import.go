/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snipersonu/ytstreamm1/internal/db"
	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/playlist"
)

var importManifestPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a playlist from a YAML manifest",
	Long: `Import a playlist from a YAML manifest.

The manifest names the playlist, its background video, and the audio
rotation. Local file paths are uploaded into managed storage; bare asset
IDs reference media that is already registered.

Example manifest:

  name: Lo-fi Rotation
  background_video: ./loops/rain.mp4
  items:
    - title: Midnight Drift
      audio: ./tracks/midnight-drift.mp3
      gain: 0.9
    - title: Already Uploaded
      audio: 3f0c9a34-52f1-4f4e-9d1c-1f6a9f3d2b10
`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importManifestPath, "manifest", "", "Path to the playlist manifest YAML (required)")
	importCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("manifest", importManifestPath).Msg("starting playlist import")

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx := context.Background()

	mediaService, err := media.NewService(ctx, cfg, database, logger)
	if err != nil {
		return fmt.Errorf("initialize media service: %w", err)
	}

	bus := events.NewBus()
	playlists := playlist.NewService(database, bus, logger)
	importer := playlist.NewImporter(playlists, mediaService, logger)

	pl, err := importer.ImportManifest(ctx, importManifestPath)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("\nImport Complete!\n")
	fmt.Printf("  Playlist: %s\n", pl.Name)
	fmt.Printf("  ID:       %s\n", pl.ID)
	fmt.Printf("  Items:    %d\n", len(pl.Items))
	if pl.BackgroundVideoID != nil {
		fmt.Printf("  Video:    %s\n", *pl.BackgroundVideoID)
	} else {
		fmt.Printf("\nNo background video set; the playlist needs one before it can stream.\n")
	}

	logger.Info().Str("playlist_id", pl.ID).Int("items", len(pl.Items)).Msg("playlist import completed")
	return nil
}
