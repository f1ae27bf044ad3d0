/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// HealthSample stores one time-series snapshot of stream delivery health.
type HealthSample struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	State      string    `gorm:"type:varchar(16)" json:"state"`
	Score      int       `gorm:"not null" json:"score"`
	Bitrate    int       `json:"bitrate"`
	FPS        int       `json:"fps"`
	Errors     int64     `json:"errors"`
	Restarts   int64     `json:"restarts"`
	UptimeSecs int64     `json:"uptime_secs"`
	CapturedAt time.Time `gorm:"index;not null" json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (HealthSample) TableName() string {
	return "health_samples"
}
