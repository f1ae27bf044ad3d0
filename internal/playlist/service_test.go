package playlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.MediaAsset{}, &models.Playlist{}, &models.PlaylistItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(db, nil, zerolog.Nop()), db
}

func seedAsset(t *testing.T, db *gorm.DB, kind models.AssetKind, name string) *models.MediaAsset {
	t.Helper()
	asset := &models.MediaAsset{
		ID:           models.NewID(),
		Kind:         kind,
		OriginalName: name,
		StorageKey:   "seed/" + name,
	}
	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return asset
}

func TestCreateAndRename(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "   "); err == nil {
		t.Error("Create() with blank name expected error")
	}

	pl, err := svc.Create(ctx, "Evening Rotation")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := svc.Rename(ctx, pl.ID, "Night Rotation"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	got, err := svc.GetPlaylist(ctx, pl.ID)
	if err != nil {
		t.Fatalf("GetPlaylist() error: %v", err)
	}
	if got.Name != "Night Rotation" {
		t.Errorf("name = %q, want %q", got.Name, "Night Rotation")
	}

	if err := svc.Rename(ctx, "no-such-id", "x"); !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("Rename() missing playlist error = %v, want ErrPlaylistNotFound", err)
	}
}

func TestAddItemOrdering(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, err := svc.Create(ctx, "Rotation")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	a := seedAsset(t, db, models.AssetAudio, "first.mp3")
	b := seedAsset(t, db, models.AssetAudio, "second.mp3")
	c := seedAsset(t, db, models.AssetAudio, "third.mp3")

	if _, err := svc.AddItem(ctx, pl.ID, "", a.ID, 0); err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	if _, err := svc.AddItem(ctx, pl.ID, "Second Track", b.ID, 0.5); err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	if _, err := svc.AddItem(ctx, pl.ID, "Loud Track", c.ID, 5); err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}

	got, err := svc.GetPlaylist(ctx, pl.ID)
	if err != nil {
		t.Fatalf("GetPlaylist() error: %v", err)
	}
	if len(got.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(got.Items))
	}

	for i, it := range got.Items {
		if it.Position != i {
			t.Errorf("items[%d].Position = %d, want %d", i, it.Position, i)
		}
	}
	if got.Items[0].Title != "first.mp3" {
		t.Errorf("default title = %q, want asset name", got.Items[0].Title)
	}
	if got.Items[0].Gain != 1.0 {
		t.Errorf("default gain = %v, want 1.0", got.Items[0].Gain)
	}
	if got.Items[1].Gain != 0.5 {
		t.Errorf("gain = %v, want 0.5", got.Items[1].Gain)
	}
	if got.Items[2].Gain != maxGain {
		t.Errorf("capped gain = %v, want %v", got.Items[2].Gain, maxGain)
	}
}

func TestKindChecks(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, _ := svc.Create(ctx, "Rotation")
	video := seedAsset(t, db, models.AssetVideo, "bg.mp4")
	audio := seedAsset(t, db, models.AssetAudio, "track.mp3")

	if _, err := svc.AddItem(ctx, pl.ID, "", video.ID, 1); !errors.Is(err, ErrWrongAssetKind) {
		t.Errorf("AddItem() with video error = %v, want ErrWrongAssetKind", err)
	}
	if err := svc.SetBackground(ctx, pl.ID, audio.ID); !errors.Is(err, ErrWrongAssetKind) {
		t.Errorf("SetBackground() with audio error = %v, want ErrWrongAssetKind", err)
	}
	if err := svc.SetBackground(ctx, pl.ID, "missing"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("SetBackground() missing asset error = %v, want ErrAssetNotFound", err)
	}

	if err := svc.SetBackground(ctx, pl.ID, video.ID); err != nil {
		t.Fatalf("SetBackground() error: %v", err)
	}
	got, _ := svc.GetPlaylist(ctx, pl.ID)
	if got.BackgroundVideoID == nil || *got.BackgroundVideoID != video.ID {
		t.Error("background video not recorded")
	}
}

func TestRemoveItemRenumbers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, _ := svc.Create(ctx, "Rotation")
	var itemIDs []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		asset := seedAsset(t, db, models.AssetAudio, name)
		item, err := svc.AddItem(ctx, pl.ID, "", asset.ID, 1)
		if err != nil {
			t.Fatalf("AddItem() error: %v", err)
		}
		itemIDs = append(itemIDs, item.ID)
	}

	if err := svc.RemoveItem(ctx, pl.ID, itemIDs[1]); err != nil {
		t.Fatalf("RemoveItem() error: %v", err)
	}
	if err := svc.RemoveItem(ctx, pl.ID, itemIDs[1]); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("repeat RemoveItem() error = %v, want ErrItemNotFound", err)
	}

	got, _ := svc.GetPlaylist(ctx, pl.ID)
	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(got.Items))
	}
	if got.Items[0].Title != "a.mp3" || got.Items[1].Title != "c.mp3" {
		t.Errorf("remaining items = %q, %q", got.Items[0].Title, got.Items[1].Title)
	}
	if got.Items[0].Position != 0 || got.Items[1].Position != 1 {
		t.Errorf("positions = %d, %d, want dense 0,1", got.Items[0].Position, got.Items[1].Position)
	}
}

func TestReorder(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, _ := svc.Create(ctx, "Rotation")
	var itemIDs []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		asset := seedAsset(t, db, models.AssetAudio, name)
		item, _ := svc.AddItem(ctx, pl.ID, name, asset.ID, 1)
		itemIDs = append(itemIDs, item.ID)
	}

	if err := svc.Reorder(ctx, pl.ID, []string{itemIDs[2], itemIDs[0], itemIDs[1]}); err != nil {
		t.Fatalf("Reorder() error: %v", err)
	}
	got, _ := svc.GetPlaylist(ctx, pl.ID)
	if got.Items[0].Title != "c.mp3" || got.Items[1].Title != "a.mp3" || got.Items[2].Title != "b.mp3" {
		t.Errorf("order = %q, %q, %q", got.Items[0].Title, got.Items[1].Title, got.Items[2].Title)
	}

	if err := svc.Reorder(ctx, pl.ID, itemIDs[:2]); err == nil {
		t.Error("Reorder() with missing ids expected error")
	}
	if err := svc.Reorder(ctx, pl.ID, []string{itemIDs[0], itemIDs[1], "foreign"}); err == nil {
		t.Error("Reorder() with foreign id expected error")
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, _ := svc.Create(ctx, "Rotation")
	asset := seedAsset(t, db, models.AssetAudio, "a.mp3")
	if _, err := svc.AddItem(ctx, pl.ID, "", asset.ID, 1); err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}

	if err := svc.Delete(ctx, pl.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := svc.Delete(ctx, pl.ID); !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("repeat Delete() error = %v, want ErrPlaylistNotFound", err)
	}

	var count int64
	db.Model(&models.PlaylistItem{}).Where("playlist_id = ?", pl.ID).Count(&count)
	if count != 0 {
		t.Errorf("orphaned items = %d, want 0", count)
	}
}

func TestCheckComplete(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pl, _ := svc.Create(ctx, "Rotation")
	if err := svc.CheckComplete(ctx, pl.ID); err == nil {
		t.Error("CheckComplete() on empty playlist expected error")
	}

	audio := seedAsset(t, db, models.AssetAudio, "a.mp3")
	if _, err := svc.AddItem(ctx, pl.ID, "", audio.ID, 1); err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	if err := svc.CheckComplete(ctx, pl.ID); err == nil {
		t.Error("CheckComplete() without background expected error")
	}

	video := seedAsset(t, db, models.AssetVideo, "bg.mp4")
	if err := svc.SetBackground(ctx, pl.ID, video.ID); err != nil {
		t.Fatalf("SetBackground() error: %v", err)
	}
	if err := svc.CheckComplete(ctx, pl.ID); err != nil {
		t.Errorf("CheckComplete() error: %v", err)
	}

	// A vanished asset row makes the playlist incomplete again.
	if err := db.Delete(&models.MediaAsset{}, "id = ?", audio.ID).Error; err != nil {
		t.Fatalf("delete asset: %v", err)
	}
	if err := svc.CheckComplete(ctx, pl.ID); err == nil {
		t.Error("CheckComplete() with missing asset expected error")
	}
}

type fakeAssets struct {
	db *gorm.DB
}

func (f *fakeAssets) Upload(ctx context.Context, in media.UploadInput) (*models.MediaAsset, error) {
	asset := &models.MediaAsset{
		ID:           models.NewID(),
		Kind:         in.Kind,
		OriginalName: in.OriginalName,
		SizeBytes:    in.Size,
		StorageKey:   "imported/" + in.OriginalName,
	}
	if err := f.db.Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

func (f *fakeAssets) Get(ctx context.Context, id string) (*models.MediaAsset, error) {
	var a models.MediaAsset
	if err := f.db.First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func TestImportManifest(t *testing.T) {
	svc, db := newTestService(t)
	im := NewImporter(svc, &fakeAssets{db: db}, zerolog.Nop())
	ctx := context.Background()

	dir := t.TempDir()
	for _, name := range []string{"bg.mp4", "track1.mp3", "track2.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("media"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	manifest := []byte(`name: Imported Rotation
background_video: bg.mp4
items:
  - audio: track1.mp3
  - title: Second
    audio: track2.mp3
    gain: 0.5
`)
	manifestPath := filepath.Join(dir, "playlist.yml")
	if err := os.WriteFile(manifestPath, manifest, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	pl, err := im.ImportManifest(ctx, manifestPath)
	if err != nil {
		t.Fatalf("ImportManifest() error: %v", err)
	}

	if pl.Name != "Imported Rotation" {
		t.Errorf("name = %q", pl.Name)
	}
	if pl.BackgroundVideoID == nil {
		t.Fatal("background video not set")
	}
	if len(pl.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(pl.Items))
	}
	if pl.Items[0].Title != "track1.mp3" {
		t.Errorf("items[0].Title = %q, want file name fallback", pl.Items[0].Title)
	}
	if pl.Items[0].Gain != 1.0 {
		t.Errorf("items[0].Gain = %v, want default 1.0", pl.Items[0].Gain)
	}
	if pl.Items[1].Title != "Second" || pl.Items[1].Gain != 0.5 {
		t.Errorf("items[1] = %q gain %v", pl.Items[1].Title, pl.Items[1].Gain)
	}

	if err := svc.CheckComplete(ctx, pl.ID); err != nil {
		t.Errorf("imported playlist incomplete: %v", err)
	}
}

func TestImportManifestRejectsGaps(t *testing.T) {
	svc, db := newTestService(t)
	im := NewImporter(svc, &fakeAssets{db: db}, zerolog.Nop())
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name     string
		manifest string
	}{
		{name: "missing name", manifest: "background_video: bg.mp4\nitems:\n  - audio: a.mp3\n"},
		{name: "missing background", manifest: "name: X\nitems:\n  - audio: a.mp3\n"},
		{name: "no items", manifest: "name: X\nbackground_video: bg.mp4\n"},
		{name: "bad yaml", manifest: "name: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, "m.yml")
			if err := os.WriteFile(p, []byte(tt.manifest), 0644); err != nil {
				t.Fatalf("write manifest: %v", err)
			}
			if _, err := im.ImportManifest(ctx, p); err == nil {
				t.Error("ImportManifest() expected error")
			}
		})
	}
}
