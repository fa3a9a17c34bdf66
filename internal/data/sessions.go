// Package data manages the server's persistent state. The only table is
// the player session store, kept in a local sqlite file so the master
// server runs stand-alone.
package data

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PlayerSession is a row recording what the server knows about a session
// token across connections. Custom properties are stored as their wire
// JSON document.
type PlayerSession struct {
	SessionToken     string `gorm:"primaryKey"`
	Nickname         string
	CustomProperties string
	LastSeenAt       time.Time
}

// SessionStore persists player sessions. All access happens on the
// dispatch thread, so no locking beyond the driver's own.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore opens (creating if needed) the sqlite file and migrates
// the schema.
func NewSessionStore(filename string) (*SessionStore, error) {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening session database %s: %w", filename, err)
	}
	if err := db.AutoMigrate(&PlayerSession{}); err != nil {
		return nil, fmt.Errorf("migrating session schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Find returns the session for the token, or nil when the token has never
// been seen.
func (s *SessionStore) Find(sessionToken string) (*PlayerSession, error) {
	var session PlayerSession
	err := s.db.Where("session_token = ?", sessionToken).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session %s: %w", sessionToken, err)
	}
	return &session, nil
}

// Put inserts or updates the session row and stamps LastSeenAt.
func (s *SessionStore) Put(session *PlayerSession) error {
	session.LastSeenAt = time.Now()
	if err := s.db.Save(session).Error; err != nil {
		return fmt.Errorf("saving session %s: %w", session.SessionToken, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SessionStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
