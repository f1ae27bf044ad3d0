/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/snipersonu/ytstreamm1/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.MediaAsset{},
		&models.Playlist{},
		&models.PlaylistItem{},
		&models.WebhookTarget{},
		&models.WebhookLog{},
		&models.HealthSample{},
	); err != nil {
		return err
	}

	if err := backfillItemGains(database); err != nil {
		return err
	}

	return nil
}

// backfillItemGains fills in the unity default for playlist items created
// before per-item gain existed. A zero gain would silence the track.
func backfillItemGains(database *gorm.DB) error {
	if err := database.
		Model(&models.PlaylistItem{}).
		Where("gain IS NULL OR gain <= 0").
		Update("gain", 1.0).Error; err != nil {
		return fmt.Errorf("backfill playlist item gains: %w", err)
	}
	return nil
}
