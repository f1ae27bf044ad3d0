/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/models"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// EnsureAdmin creates the bootstrap admin account when no user with that
// name exists yet. Without configured credentials nothing is created.
func EnsureAdmin(ctx context.Context, db *gorm.DB, username, password string, logger zerolog.Logger) error {
	if username == "" || password == "" {
		logger.Warn().Msg("admin bootstrap skipped: no credentials configured")
		return nil
	}

	var existing models.User
	err := db.WithContext(ctx).First(&existing, "username = ?", username).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("query user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:       models.NewID(),
		Username: username,
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	logger.Info().Str("username", username).Msg("bootstrap admin account created")
	return nil
}

// Authenticate checks a username/password pair against the user table.
func Authenticate(ctx context.Context, db *gorm.DB, username, password string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}
