package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleName enumerates the account roles.
type RoleName string

const (
	RoleAdmin    RoleName = "admin"
	RoleOperator RoleName = "operator"
)

// ParseRole normalizes a role string, defaulting to operator.
func ParseRole(s string) RoleName {
	switch RoleName(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleOperator
	}
}

// User represents an authenticated account.
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username"`
	Password  string    `json:"-"`
	Role      RoleName  `gorm:"type:varchar(16)" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetKind distinguishes background video sources from audio tracks.
type AssetKind string

const (
	AssetVideo AssetKind = "video"
	AssetAudio AssetKind = "audio"
)

// MediaAsset is an uploaded or URL-sourced media file referenced by
// playlists and by single-source stream configurations.
type MediaAsset struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Kind         AssetKind `gorm:"type:varchar(8);index" json:"kind"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `gorm:"type:varchar(64)" json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	StorageKey   string    `gorm:"index" json:"storage_key"`
	SourceURL    string    `json:"source_url,omitempty"`
	UploadedBy   string    `gorm:"type:varchar(64)" json:"uploaded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (MediaAsset) TableName() string {
	return "media_assets"
}

// IsRemote reports whether the asset plays from a URL rather than managed storage.
func (m *MediaAsset) IsRemote() bool {
	return m.SourceURL != ""
}

// Playlist groups a looping background video with an ordered audio rotation.
type Playlist struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string         `gorm:"index" json:"name"`
	BackgroundVideoID *string        `gorm:"type:uuid" json:"background_video_id,omitempty"`
	Items             []PlaylistItem `gorm:"foreignKey:PlaylistID" json:"items"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistItem is one audio track in a playlist rotation.
type PlaylistItem struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	PlaylistID   string    `gorm:"type:uuid;index;not null" json:"playlist_id"`
	Position     int       `gorm:"not null" json:"position"`
	Title        string    `json:"title"`
	AudioAssetID string    `gorm:"type:uuid;not null" json:"audio_asset_id"`
	Gain         float64   `gorm:"not null;default:1" json:"gain"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (PlaylistItem) TableName() string {
	return "playlist_items"
}

// NewID returns a fresh UUID string for primary keys.
func NewID() string {
	return uuid.NewString()
}
