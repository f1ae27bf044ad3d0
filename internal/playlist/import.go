/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/models"
)

// Manifest mirrors the YAML accepted by the import command.
type Manifest struct {
	Name            string         `yaml:"name"`
	BackgroundVideo string         `yaml:"background_video"`
	Items           []ManifestItem `yaml:"items"`
}

// ManifestItem is one rotation entry. Audio may be a local file path
// (relative paths resolve against the manifest's directory) or the ID of an
// already-registered asset.
type ManifestItem struct {
	Title string  `yaml:"title"`
	Audio string  `yaml:"audio"`
	Gain  float64 `yaml:"gain"`
}

// AssetStore is the slice of the media service the importer needs.
type AssetStore interface {
	Upload(ctx context.Context, in media.UploadInput) (*models.MediaAsset, error)
	Get(ctx context.Context, id string) (*models.MediaAsset, error)
}

// Importer builds playlists from YAML manifests, uploading local files as it goes.
type Importer struct {
	playlists *Service
	assets    AssetStore
	logger    zerolog.Logger
}

// NewImporter creates a manifest importer.
func NewImporter(playlists *Service, assets AssetStore, logger zerolog.Logger) *Importer {
	return &Importer{
		playlists: playlists,
		assets:    assets,
		logger:    logger.With().Str("component", "playlist_import").Logger(),
	}
}

// ImportManifest reads one manifest file and returns the created playlist.
func (im *Importer) ImportManifest(ctx context.Context, manifestPath string) (*models.Playlist, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest is missing a playlist name")
	}
	if m.BackgroundVideo == "" {
		return nil, fmt.Errorf("manifest is missing a background video")
	}
	if len(m.Items) == 0 {
		return nil, fmt.Errorf("manifest has no items")
	}

	baseDir := filepath.Dir(manifestPath)

	bg, err := im.resolveAsset(ctx, baseDir, m.BackgroundVideo, models.AssetVideo)
	if err != nil {
		return nil, fmt.Errorf("background video: %w", err)
	}

	pl, err := im.playlists.Create(ctx, m.Name)
	if err != nil {
		return nil, err
	}
	if err := im.playlists.SetBackground(ctx, pl.ID, bg.ID); err != nil {
		return nil, err
	}

	for i, item := range m.Items {
		asset, err := im.resolveAsset(ctx, baseDir, item.Audio, models.AssetAudio)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		if _, err := im.playlists.AddItem(ctx, pl.ID, item.Title, asset.ID, item.Gain); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	im.logger.Info().
		Str("playlist_id", pl.ID).
		Str("name", m.Name).
		Int("items", len(m.Items)).
		Msg("manifest imported")

	return im.playlists.GetPlaylist(ctx, pl.ID)
}

// resolveAsset turns a manifest reference into an asset: existing asset IDs
// pass through, local files are uploaded.
func (im *Importer) resolveAsset(ctx context.Context, baseDir, ref string, kind models.AssetKind) (*models.MediaAsset, error) {
	if _, err := uuid.Parse(ref); err == nil {
		asset, err := im.assets.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		if asset.Kind != kind {
			return nil, ErrWrongAssetKind
		}
		return asset, nil
	}

	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}

	asset, err := im.assets.Upload(ctx, media.UploadInput{
		Kind:         kind,
		OriginalName: filepath.Base(p),
		ContentType:  "application/octet-stream", // the extension decides
		Size:         info.Size(),
		File:         f,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", ref, err)
	}

	im.logger.Info().Str("path", ref).Str("asset_id", asset.ID).Msg("imported media file")
	return asset, nil
}
