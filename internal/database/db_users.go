package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-while/go-nzbidx/internal/models"
)

// InsertUser creates a user with a bcrypt password hash and a fresh API key.
func (db *Database) InsertUser(username, password string, isAdmin bool) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	apiKey, err := newAPIKey()
	if err != nil {
		return nil, err
	}
	result, err := retryableExec(db.mainDB, `
		INSERT INTO users (username, password_hash, api_key, is_admin)
		VALUES (?, ?, ?, ?)`, username, string(hash), apiKey, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user '%s': %w", username, err)
	}
	id, _ := result.LastInsertId()
	return &models.User{ID: id, Username: username, APIKey: apiKey, IsAdmin: isAdmin}, nil
}

// GetUserByUsername returns a user row, or (nil, nil) when absent.
func (db *Database) GetUserByUsername(username string) (*models.User, error) {
	u := &models.User{}
	err := retryableQueryRowScan(db.mainDB, `
		SELECT id, username, password_hash, api_key, is_admin, created_at
		FROM users WHERE username = ?`,
		[]interface{}{username},
		&u.ID, &u.Username, &u.PasswordHash, &u.APIKey, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", username, err)
	}
	return u, nil
}

// UpdateUserPassword rehashes and stores a new password.
func (db *Database) UpdateUserPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = retryableExec(db.mainDB,
		"UPDATE users SET password_hash = ? WHERE username = ?", string(hash), username)
	if err != nil {
		return fmt.Errorf("failed to update password for '%s': %w", username, err)
	}
	return nil
}

// CheckUserPassword verifies a login attempt.
func (db *Database) CheckUserPassword(username, password string) (bool, error) {
	u, err := db.GetUserByUsername(username)
	if err != nil || u == nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil, nil
}

func newAPIKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
