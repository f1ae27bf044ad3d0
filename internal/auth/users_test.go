package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/models"
)

func newUserDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestEnsureAdmin(t *testing.T) {
	db := newUserDB(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	if err := EnsureAdmin(ctx, db, "admin", "sekrit123", logger); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	var user models.User
	if err := db.First(&user, "username = ?", "admin").Error; err != nil {
		t.Fatalf("admin user not created: %v", err)
	}
	if user.Role != models.RoleAdmin {
		t.Errorf("role = %q, want admin", user.Role)
	}
	if user.Password == "sekrit123" {
		t.Error("password stored in plaintext")
	}

	// A second call must not create a duplicate or rehash.
	if err := EnsureAdmin(ctx, db, "admin", "different", logger); err != nil {
		t.Fatalf("repeat EnsureAdmin: %v", err)
	}
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("user count = %d, want 1", count)
	}

	// Missing credentials skip bootstrap entirely.
	if err := EnsureAdmin(ctx, db, "other", "", logger); err != nil {
		t.Fatalf("EnsureAdmin without password: %v", err)
	}
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("user count = %d, want 1 after skipped bootstrap", count)
	}
}

func TestAuthenticate(t *testing.T) {
	db := newUserDB(t)
	ctx := context.Background()

	if err := EnsureAdmin(ctx, db, "admin", "sekrit123", zerolog.Nop()); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	user, err := Authenticate(ctx, db, "admin", "sekrit123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.Username != "admin" {
		t.Errorf("username = %q", user.Username)
	}

	if _, err := Authenticate(ctx, db, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := Authenticate(ctx, db, "ghost", "sekrit123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}
