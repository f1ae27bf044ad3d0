/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/models"
)

var (
	// ErrPlaylistNotFound indicates the playlist was not found.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrItemNotFound indicates the playlist item was not found.
	ErrItemNotFound = errors.New("playlist item not found")

	// ErrAssetNotFound indicates a referenced media asset does not exist.
	ErrAssetNotFound = errors.New("media asset not found")

	// ErrWrongAssetKind indicates an asset of the wrong kind was referenced,
	// e.g. an audio track offered as the background video.
	ErrWrongAssetKind = errors.New("asset kind does not fit this slot")
)

// maxGain caps per-item volume gain. ffmpeg accepts higher multipliers but
// anything past 2x only clips.
const maxGain = 2.0

// Service manages playlists and their rotation items.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a playlist service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "playlist").Logger(),
	}
}

// Create creates an empty playlist.
func (s *Service) Create(ctx context.Context, name string) (*models.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("playlist name is required")
	}

	pl := &models.Playlist{
		ID:   models.NewID(),
		Name: name,
	}
	if err := s.db.WithContext(ctx).Create(pl).Error; err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}

	s.logger.Info().Str("playlist_id", pl.ID).Str("name", pl.Name).Msg("playlist created")
	s.publishUpdated(pl.ID)
	return pl, nil
}

// GetPlaylist retrieves a playlist with its items ordered by position.
// This is the loader the sequencer plays from.
func (s *Service) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	var pl models.Playlist
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&pl, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("query playlist: %w", err)
	}
	return &pl, nil
}

// List returns all playlists with their items, ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("name ASC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	return playlists, nil
}

// Rename changes the playlist name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("playlist name is required")
	}

	res := s.db.WithContext(ctx).Model(&models.Playlist{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("rename playlist: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlaylistNotFound
	}

	s.publishUpdated(id)
	return nil
}

// Delete removes a playlist and its items.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&models.PlaylistItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		res := tx.Delete(&models.Playlist{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete playlist: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPlaylistNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("playlist_id", id).Msg("playlist deleted")
	if s.bus != nil {
		s.bus.Publish(events.EventPlaylistDeleted, events.Payload{"playlist_id": id})
	}
	return nil
}

// SetBackground points the playlist at its looping background video.
func (s *Service) SetBackground(ctx context.Context, playlistID, assetID string) error {
	asset, err := s.loadAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset.Kind != models.AssetVideo {
		return ErrWrongAssetKind
	}

	res := s.db.WithContext(ctx).Model(&models.Playlist{}).
		Where("id = ?", playlistID).
		Update("background_video_id", assetID)
	if res.Error != nil {
		return fmt.Errorf("set background: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlaylistNotFound
	}

	s.logger.Info().
		Str("playlist_id", playlistID).
		Str("asset_id", assetID).
		Msg("playlist background set")
	s.publishUpdated(playlistID)
	return nil
}

// AddItem appends one audio track to the rotation.
func (s *Service) AddItem(ctx context.Context, playlistID, title, audioAssetID string, gain float64) (*models.PlaylistItem, error) {
	if _, err := s.GetPlaylist(ctx, playlistID); err != nil {
		return nil, err
	}
	asset, err := s.loadAsset(ctx, audioAssetID)
	if err != nil {
		return nil, err
	}
	if asset.Kind != models.AssetAudio {
		return nil, ErrWrongAssetKind
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = asset.OriginalName
	}
	if gain <= 0 {
		gain = 1.0
	}
	if gain > maxGain {
		gain = maxGain
	}

	item := &models.PlaylistItem{
		ID:           models.NewID(),
		PlaylistID:   playlistID,
		Title:        title,
		AudioAssetID: audioAssetID,
		Gain:         gain,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPos int
		row := tx.Model(&models.PlaylistItem{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(position), -1)").
			Row()
		if err := row.Scan(&maxPos); err != nil {
			return fmt.Errorf("next position: %w", err)
		}
		item.Position = maxPos + 1
		if err := tx.Create(item).Error; err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("playlist_id", playlistID).
		Str("item_id", item.ID).
		Str("title", item.Title).
		Int("position", item.Position).
		Msg("playlist item added")
	s.publishUpdated(playlistID)
	return item, nil
}

// RemoveItem deletes one item and renumbers the remaining positions.
func (s *Service) RemoveItem(ctx context.Context, playlistID, itemID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND playlist_id = ?", itemID, playlistID).Delete(&models.PlaylistItem{})
		if res.Error != nil {
			return fmt.Errorf("delete item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrItemNotFound
		}
		return renumberItems(tx, playlistID)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("playlist_id", playlistID).Str("item_id", itemID).Msg("playlist item removed")
	s.publishUpdated(playlistID)
	return nil
}

// Reorder applies a full permutation of the playlist's item IDs.
func (s *Service) Reorder(ctx context.Context, playlistID string, itemIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.PlaylistItem
		if err := tx.Where("playlist_id = ?", playlistID).Find(&items).Error; err != nil {
			return fmt.Errorf("query items: %w", err)
		}
		if len(items) != len(itemIDs) {
			return fmt.Errorf("reorder needs all %d item ids, got %d", len(items), len(itemIDs))
		}

		current := make(map[string]bool, len(items))
		for _, it := range items {
			current[it.ID] = true
		}
		for _, id := range itemIDs {
			if !current[id] {
				return fmt.Errorf("item %s does not belong to this playlist", id)
			}
			delete(current, id)
		}

		for pos, id := range itemIDs {
			if err := tx.Model(&models.PlaylistItem{}).
				Where("id = ?", id).
				Update("position", pos).Error; err != nil {
				return fmt.Errorf("update position: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("playlist_id", playlistID).Int("items", len(itemIDs)).Msg("playlist reordered")
	s.publishUpdated(playlistID)
	return nil
}

// SetItemGain adjusts one item's volume gain.
func (s *Service) SetItemGain(ctx context.Context, playlistID, itemID string, gain float64) error {
	if gain <= 0 {
		return fmt.Errorf("gain must be positive")
	}
	if gain > maxGain {
		gain = maxGain
	}

	res := s.db.WithContext(ctx).Model(&models.PlaylistItem{}).
		Where("id = ? AND playlist_id = ?", itemID, playlistID).
		Update("gain", gain)
	if res.Error != nil {
		return fmt.Errorf("update gain: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrItemNotFound
	}

	s.publishUpdated(playlistID)
	return nil
}

// CheckComplete reports whether the playlist can be played: at least one
// item, a background video, and every referenced asset still on record.
func (s *Service) CheckComplete(ctx context.Context, id string) error {
	pl, err := s.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	if len(pl.Items) == 0 {
		return fmt.Errorf("playlist %q has no items", pl.Name)
	}
	if pl.BackgroundVideoID == nil || *pl.BackgroundVideoID == "" {
		return fmt.Errorf("playlist %q has no background video", pl.Name)
	}

	unique := map[string]bool{*pl.BackgroundVideoID: true}
	for _, it := range pl.Items {
		unique[it.AudioAssetID] = true
	}
	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}

	var found int64
	if err := s.db.WithContext(ctx).Model(&models.MediaAsset{}).
		Where("id IN ?", ids).Count(&found).Error; err != nil {
		return fmt.Errorf("count assets: %w", err)
	}
	if int(found) != len(ids) {
		return fmt.Errorf("playlist %q references missing media assets", pl.Name)
	}
	return nil
}

func (s *Service) loadAsset(ctx context.Context, id string) (*models.MediaAsset, error) {
	var asset models.MediaAsset
	if err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("query asset: %w", err)
	}
	return &asset, nil
}

func (s *Service) publishUpdated(playlistID string) {
	if s.bus != nil {
		s.bus.Publish(events.EventPlaylistUpdated, events.Payload{"playlist_id": playlistID})
	}
}

// renumberItems rewrites positions as a dense 0..n-1 sequence.
func renumberItems(tx *gorm.DB, playlistID string) error {
	var items []models.PlaylistItem
	if err := tx.Where("playlist_id = ?", playlistID).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	for pos, it := range items {
		if it.Position == pos {
			continue
		}
		if err := tx.Model(&models.PlaylistItem{}).
			Where("id = ?", it.ID).
			Update("position", pos).Error; err != nil {
			return fmt.Errorf("renumber item: %w", err)
		}
	}
	return nil
}
