package main

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"net"
	"time"
)

// SnoozeSession suppresses reminder dispatch until it expires. Sessions are
// keyed per client device so re-scanning a snooze QR code extends that
// device's snooze; reminders stay quiet while any session is unexpired.
type SnoozeSession struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// generateSessionID creates a session ID based on client IP only, so all
// snoozes from the same device share one session
func generateSessionID(clientIP string) string {
	hash := md5.Sum([]byte(clientIP))
	return fmt.Sprintf("%x", hash)[:16]
}

// getClientIP extracts the client IP from a remote address
func getClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// If SplitHostPort fails, assume the whole string is the IP
		return remoteAddr
	}
	return host
}

// CreateSnooze creates or replaces the snooze session for a client device
func (s *Store) CreateSnooze(clientIP string, duration time.Duration) (*SnoozeSession, error) {
	now := time.Now()
	session := &SnoozeSession{
		SessionID: generateSessionID(clientIP),
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
	}

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO snooze_sessions (session_id, created_at, expires_at) VALUES (?, ?, ?)",
		session.SessionID, session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snooze session: %w", err)
	}

	return session, nil
}

// GetActiveSnooze returns the longest-lived unexpired snooze session, or nil
// when reminders are not snoozed. Expired sessions are cleaned up on the way.
func (s *Store) GetActiveSnooze() (*SnoozeSession, error) {
	if err := s.cleanupExpiredSnoozes(); err != nil {
		return nil, err
	}

	var session SnoozeSession
	err := s.db.QueryRow(
		"SELECT session_id, created_at, expires_at FROM snooze_sessions ORDER BY expires_at DESC LIMIT 1",
	).Scan(&session.SessionID, &session.CreatedAt, &session.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snooze session: %w", err)
	}

	return &session, nil
}

// ClearSnooze removes all snooze sessions
func (s *Store) ClearSnooze() error {
	_, err := s.db.Exec("DELETE FROM snooze_sessions")
	if err != nil {
		return fmt.Errorf("failed to clear snooze sessions: %w", err)
	}
	return nil
}

// cleanupExpiredSnoozes removes sessions past their expiration time
func (s *Store) cleanupExpiredSnoozes() error {
	_, err := s.db.Exec("DELETE FROM snooze_sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return fmt.Errorf("failed to clean up expired snooze sessions: %w", err)
	}
	return nil
}
