/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/config"
	"github.com/snipersonu/ytstreamm1/internal/models"
)

// ErrAssetInUse is returned when deleting an asset that a playlist still references.
var ErrAssetInUse = errors.New("media asset is referenced by a playlist")

// Storage abstracts where uploaded media bytes live.
type Storage interface {
	Store(ctx context.Context, key, contentType string, file io.Reader) error
	Delete(ctx context.Context, key string) error
	// PlaybackRef returns a reference the encode pipeline can open directly:
	// an absolute path for filesystem storage, a URL for object storage.
	PlaybackRef(ctx context.Context, key string) (string, error)
	CheckAccess(ctx context.Context) error
}

// formats maps accepted upload MIME types to the asset kind they produce and
// the canonical file extension used when the upload name has none.
var formats = map[string]struct {
	Kind models.AssetKind
	Ext  string
}{
	"video/mp4":        {models.AssetVideo, ".mp4"},
	"video/webm":       {models.AssetVideo, ".webm"},
	"video/x-matroska": {models.AssetVideo, ".mkv"},
	"video/quicktime":  {models.AssetVideo, ".mov"},
	"audio/mpeg":       {models.AssetAudio, ".mp3"},
	"audio/mp4":        {models.AssetAudio, ".m4a"},
	"audio/aac":        {models.AssetAudio, ".aac"},
	"audio/ogg":        {models.AssetAudio, ".ogg"},
	"audio/wav":        {models.AssetAudio, ".wav"},
	"audio/x-wav":      {models.AssetAudio, ".wav"},
	"audio/flac":       {models.AssetAudio, ".flac"},
}

// extensionTypes resolves a file extension to its MIME type. Used for uploads
// that arrive as application/octet-stream and for disk scans. The stdlib
// extension table does not cover common media types, so we keep our own.
var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

// Service manages the media asset library and its backing storage.
type Service struct {
	db        *gorm.DB
	storage   Storage
	maxUpload int64
	logger    zerolog.Logger
}

// NewService creates a media service using filesystem or S3 storage based on config.
func NewService(ctx context.Context, cfg *config.Config, db *gorm.DB, logger zerolog.Logger) (*Service, error) {
	var storage Storage

	if cfg.StorageBackend == config.StorageS3 {
		s3cfg := S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}

		if s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, using the ambient AWS credential chain")
		}

		s3Storage, err := NewS3Storage(ctx, s3cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, logger)
	}

	return &Service{
		db:        db,
		storage:   storage,
		maxUpload: cfg.MaxUploadSizeBytes(),
		logger:    logger.With().Str("component", "media").Logger(),
	}, nil
}

// UploadInput describes one incoming media file.
type UploadInput struct {
	Kind         models.AssetKind
	OriginalName string
	ContentType  string
	Size         int64
	UploadedBy   string
	File         io.Reader
}

// Upload validates and stores one media file, then records the asset.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.MediaAsset, error) {
	if err := s.validateUpload(&in); err != nil {
		return nil, err
	}

	asset := &models.MediaAsset{
		ID:           models.NewID(),
		Kind:         in.Kind,
		OriginalName: filepath.Base(in.OriginalName),
		ContentType:  in.ContentType,
		SizeBytes:    in.Size,
		UploadedBy:   in.UploadedBy,
	}
	asset.StorageKey = buildStorageKey(asset.Kind, asset.ID, storageExtension(&in))

	if err := s.storage.Store(ctx, asset.StorageKey, asset.ContentType, in.File); err != nil {
		s.logger.Error().Err(err).Str("asset_id", asset.ID).Msg("media store failed")
		return nil, fmt.Errorf("store media: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		// The bytes are unreachable without a row; reclaim them.
		_ = s.storage.Delete(ctx, asset.StorageKey)
		return nil, fmt.Errorf("save media record: %w", err)
	}

	s.logger.Info().
		Str("asset_id", asset.ID).
		Str("kind", string(asset.Kind)).
		Str("name", asset.OriginalName).
		Int64("size", asset.SizeBytes).
		Msg("media stored")

	return asset, nil
}

// AddRemote registers a URL-backed asset after checking that the URL answers.
func (s *Service) AddRemote(ctx context.Context, kind models.AssetKind, rawURL, addedBy string) (*models.MediaAsset, error) {
	if kind != models.AssetVideo && kind != models.AssetAudio {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("remote assets must use an http(s) URL")
	}
	if err := s.ProbeURL(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("source unreachable: %w", err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Host
	}

	asset := &models.MediaAsset{
		ID:           models.NewID(),
		Kind:         kind,
		OriginalName: name,
		SourceURL:    rawURL,
		UploadedBy:   addedBy,
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("save media record: %w", err)
	}

	s.logger.Info().Str("asset_id", asset.ID).Str("url", rawURL).Msg("remote media registered")
	return asset, nil
}

// List returns assets newest first, optionally filtered by kind.
func (s *Service) List(ctx context.Context, kind models.AssetKind) ([]models.MediaAsset, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var assets []models.MediaAsset
	if err := q.Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return assets, nil
}

// Get loads one asset by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	if err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("media asset %s: %w", id, err)
	}
	return &asset, nil
}

// Delete removes the asset record, reclaiming stored bytes on a best effort
// basis. Assets still referenced by a playlist are refused with ErrAssetInUse.
func (s *Service) Delete(ctx context.Context, id string) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var refs int64
	if err := s.db.WithContext(ctx).Model(&models.PlaylistItem{}).
		Where("audio_asset_id = ?", id).Count(&refs).Error; err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if refs == 0 {
		if err := s.db.WithContext(ctx).Model(&models.Playlist{}).
			Where("background_video_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("count references: %w", err)
		}
	}
	if refs > 0 {
		return ErrAssetInUse
	}

	if !asset.IsRemote() {
		if err := s.storage.Delete(ctx, asset.StorageKey); err != nil {
			// Metadata deletion proceeds regardless; a disk scan picks up the leftovers.
			s.logger.Warn().Err(err).Str("asset_id", id).Msg("storage reclaim failed")
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.MediaAsset{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}

	s.logger.Info().Str("asset_id", id).Str("name", asset.OriginalName).Msg("media deleted")
	return nil
}

// ResolvePath returns a playable reference for the asset: the source URL for
// remote assets, otherwise whatever the storage backend hands out.
func (s *Service) ResolvePath(ctx context.Context, assetID string) (string, error) {
	var asset models.MediaAsset
	if err := s.db.WithContext(ctx).First(&asset, "id = ?", assetID).Error; err != nil {
		return "", fmt.Errorf("media asset %s: %w", assetID, err)
	}
	if asset.IsRemote() {
		return asset.SourceURL, nil
	}
	ref, err := s.storage.PlaybackRef(ctx, asset.StorageKey)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", asset.OriginalName, err)
	}
	return ref, nil
}

// CheckStorageAccess verifies that the storage backend is reachable.
func (s *Service) CheckStorageAccess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.storage.CheckAccess(ctx)
}

func (s *Service) validateUpload(in *UploadInput) error {
	if in.Kind != models.AssetVideo && in.Kind != models.AssetAudio {
		return fmt.Errorf("unknown asset kind %q", in.Kind)
	}
	if in.Size <= 0 {
		return fmt.Errorf("upload size must be positive")
	}
	if in.Size > s.maxUpload {
		return fmt.Errorf("file too large: %d bytes exceeds the %d byte limit", in.Size, s.maxUpload)
	}

	ct := in.ContentType
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	format, ok := formats[ct]
	if !ok {
		// Browsers often send application/octet-stream; fall back to the extension.
		if byExt, found := extensionTypes[strings.ToLower(filepath.Ext(in.OriginalName))]; found {
			ct = byExt
			format, ok = formats[ct]
		}
	}
	if !ok {
		return fmt.Errorf("unsupported content type %q", in.ContentType)
	}
	if format.Kind != in.Kind {
		return fmt.Errorf("%s is not a %s format", ct, in.Kind)
	}

	in.ContentType = ct
	return nil
}

// storageExtension prefers the upload's own extension when recognized and
// falls back to the canonical extension for its content type.
func storageExtension(in *UploadInput) string {
	if ext := strings.ToLower(filepath.Ext(in.OriginalName)); ext != "" {
		if _, ok := extensionTypes[ext]; ok {
			return ext
		}
	}
	return formats[in.ContentType].Ext
}

// buildStorageKey constructs a hierarchical storage key for an asset.
func buildStorageKey(kind models.AssetKind, assetID, extension string) string {
	// Structure: kind/id[0:2]/id[2:4]/id.ext
	// Two shard levels keep directory fan-out flat for large libraries.
	if len(assetID) < 4 {
		return path.Join(string(kind), assetID+extension)
	}
	return path.Join(string(kind), assetID[0:2], assetID[2:4], assetID+extension)
}
