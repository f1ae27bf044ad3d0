/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/models"
)

// Scanner reconciles the on-disk media tree with the asset table.
type Scanner struct {
	db      *gorm.DB
	rootDir string
	logger  zerolog.Logger
}

// ScanReport summarizes one reconciliation pass.
type ScanReport struct {
	TotalFiles int `json:"total_files"`
	Tracked    int `json:"tracked"`
	Adopted    int `json:"adopted"`
	Untracked  int `json:"untracked"`
	Missing    int `json:"missing"`
	Errors     int `json:"errors"`
}

// NewScanner creates a scanner over the filesystem media root.
func NewScanner(db *gorm.DB, rootDir string, logger zerolog.Logger) *Scanner {
	return &Scanner{
		db:      db,
		rootDir: rootDir,
		logger:  logger.With().Str("component", "media_scanner").Logger(),
	}
}

// ScanDisk walks the media root and compares it against the asset table.
// With adopt set, untracked media files are registered as assets; otherwise
// they are only counted. Asset rows whose file has vanished are reported as
// missing either way.
func (s *Scanner) ScanDisk(ctx context.Context, adopt bool) (*ScanReport, error) {
	report := &ScanReport{}

	s.logger.Info().Str("media_root", s.rootDir).Bool("adopt", adopt).Msg("starting disk scan")

	known, err := s.knownStorageKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known keys: %w", err)
	}

	err = filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			report.Errors++
			return nil // Continue walking
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			return nil
		}
		if !isMediaFile(d.Name()) {
			return nil
		}

		report.TotalFiles++

		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			report.Errors++
			return nil
		}
		key := filepath.ToSlash(rel)

		if _, ok := known[key]; ok {
			report.Tracked++
			delete(known, key) // leftovers below are rows without files
			return nil
		}

		if !adopt {
			report.Untracked++
			return nil
		}

		if err := s.adoptFile(ctx, key, d); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to adopt file")
			report.Errors++
			return nil
		}
		report.Adopted++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk media root: %w", err)
	}

	// Whatever is left in the map has a row but no file.
	report.Missing = len(known)
	for key, id := range known {
		s.logger.Warn().Str("asset_id", id).Str("key", key).Msg("asset file missing from disk")
	}

	s.logger.Info().
		Int("total", report.TotalFiles).
		Int("tracked", report.Tracked).
		Int("adopted", report.Adopted).
		Int("untracked", report.Untracked).
		Int("missing", report.Missing).
		Int("errors", report.Errors).
		Msg("disk scan complete")

	return report, nil
}

// knownStorageKeys maps storage key to asset ID for all locally stored assets.
func (s *Scanner) knownStorageKeys(ctx context.Context) (map[string]string, error) {
	var assets []models.MediaAsset
	if err := s.db.WithContext(ctx).
		Where("source_url = '' OR source_url IS NULL").
		Find(&assets).Error; err != nil {
		return nil, err
	}
	known := make(map[string]string, len(assets))
	for _, a := range assets {
		known[a.StorageKey] = a.ID
	}
	return known, nil
}

// adoptFile registers one untracked file as an asset, keeping its on-disk
// location as the storage key.
func (s *Scanner) adoptFile(ctx context.Context, key string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	contentType := extensionTypes[strings.ToLower(filepath.Ext(d.Name()))]
	format := formats[contentType]

	asset := &models.MediaAsset{
		ID:           models.NewID(),
		Kind:         format.Kind,
		OriginalName: d.Name(),
		ContentType:  contentType,
		SizeBytes:    info.Size(),
		StorageKey:   key,
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	s.logger.Info().
		Str("asset_id", asset.ID).
		Str("kind", string(asset.Kind)).
		Str("key", key).
		Msg("adopted untracked media file")
	return nil
}

// isMediaFile reports whether the name carries a recognized media extension.
func isMediaFile(name string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}
