package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding runtime settings, snooze sessions
// and the reminder history.
type Store struct {
	db *sql.DB
}

// ReminderRecord is one dispatched reminder, kept for the dashboard history.
type ReminderRecord struct {
	ID             int64     `json:"id"`
	JobName        string    `json:"job_name"`
	FinishedAt     time.Time `json:"finished_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	Tier           string    `json:"tier"`
	Message        string    `json:"message"`
	Sinks          string    `json:"sinks"`
	SentAt         time.Time `json:"sent_at"`
}

// NewStore opens the database file, creates the schema if needed and seeds
// default configuration on a fresh installation.
func NewStore(dbFile string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initDatabase(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initDatabase creates the schema
func (s *Store) initDatabase() error {
	createTables := []string{
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name TEXT,
			finished_at TIMESTAMP,
			elapsed_seconds INTEGER,
			tier TEXT,
			message TEXT,
			sinks TEXT,
			sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS snooze_sessions (
			session_id TEXT PRIMARY KEY,
			created_at TIMESTAMP,
			expires_at TIMESTAMP
		)`,
	}

	for _, query := range createTables {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := s.initializeDefaultConfig(); err != nil {
		return fmt.Errorf("failed to initialize default configuration: %w", err)
	}

	return nil
}

// initializeDefaultConfig seeds default configuration values on first run
func (s *Store) initializeDefaultConfig() error {
	defaultConfigs := map[string]string{
		ConfigKeyEnabled:             "true",
		ConfigKeyIntervalSeconds:     fmt.Sprintf("%d", DefaultIntervalSeconds),
		ConfigKeyStartDelaySeconds:   fmt.Sprintf("%d", DefaultStartDelaySeconds),
		ConfigKeyTemplateUnderMinute: DefaultTemplateUnderMinute,
		ConfigKeyTemplateUnderHour:   DefaultTemplateUnderHour,
		ConfigKeyTemplateUnderDay:    DefaultTemplateUnderDay,
		ConfigKeyTemplateOverDay:     DefaultTemplateOverDay,
		ConfigKeySendLCD:             "true",
		ConfigKeySendPopup:           "false",
		ConfigKeyWebhookEnabled:      "false",
		ConfigKeyWebhookURL:          "",
		ConfigKeyWebhookUsername:     "",
		ConfigKeyWebhookPassword:     "",
		ConfigKeyOctoPrintURL:        DefaultOctoPrintURL,
		ConfigKeyOctoPrintAPIKey:     "",
		ConfigKeyPollInterval:        fmt.Sprintf("%d", DefaultPollInterval),
	}

	var totalCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM configuration").Scan(&totalCount)
	if err != nil {
		return fmt.Errorf("failed to check config existence: %w", err)
	}

	// Only insert defaults on a fresh installation
	if totalCount == 0 {
		for key, value := range defaultConfigs {
			_, err := s.db.Exec(
				"INSERT INTO configuration (key, value, description) VALUES (?, ?, ?)",
				key, value, getConfigDescription(key),
			)
			if err != nil {
				return fmt.Errorf("failed to insert default config %s: %w", key, err)
			}
		}
	}

	return nil
}

// getConfigDescription returns a description for a configuration key
func getConfigDescription(key string) string {
	descriptions := map[string]string{
		ConfigKeyEnabled:             "Whether finished-print reminders are enabled",
		ConfigKeyIntervalSeconds:     "Seconds between reminder messages",
		ConfigKeyStartDelaySeconds:   "Seconds to wait after a print finishes before the first reminder",
		ConfigKeyTemplateUnderMinute: "Reminder template while less than a minute has passed",
		ConfigKeyTemplateUnderHour:   "Reminder template while less than an hour has passed",
		ConfigKeyTemplateUnderDay:    "Reminder template while less than a day has passed",
		ConfigKeyTemplateOverDay:     "Reminder template once a day or more has passed",
		ConfigKeySendLCD:             "Send reminders to the printer LCD via M117",
		ConfigKeySendPopup:           "Send reminders as dashboard popups",
		ConfigKeyWebhookEnabled:      "Send reminders to a webhook URL",
		ConfigKeyWebhookURL:          "Webhook URL for reminder notifications",
		ConfigKeyWebhookUsername:     "Webhook basic auth username",
		ConfigKeyWebhookPassword:     "Webhook basic auth password",
		ConfigKeyOctoPrintURL:        "URL of the OctoPrint instance",
		ConfigKeyOctoPrintAPIKey:     "OctoPrint API key for authentication",
		ConfigKeyPollInterval:        "Printer polling interval in seconds",
	}
	if desc, exists := descriptions[key]; exists {
		return desc
	}
	return "Configuration value"
}

// GetConfigValue gets a configuration value from the database
func (s *Store) GetConfigValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM configuration WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to get config value for %s: %w", key, err)
	}
	return value, nil
}

// SetConfigValue sets a configuration value in the database
func (s *Store) SetConfigValue(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO configuration (key, value, description, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		key, value, getConfigDescription(key),
	)
	if err != nil {
		return fmt.Errorf("failed to set config value for %s: %w", key, err)
	}
	return nil
}

// GetAllConfig gets all configuration values
func (s *Store) GetAllConfig() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM configuration")
	if err != nil {
		return nil, fmt.Errorf("failed to get all config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		config[key] = value
	}

	return config, nil
}

// Snapshot loads the current runtime settings. The reminder engine calls
// this on every tick so settings changes take effect without a restart.
func (s *Store) Snapshot() (*Settings, error) {
	return LoadSettings(s)
}

// IsFirstRun checks whether OctoPrint has been configured yet
func (s *Store) IsFirstRun() (bool, error) {
	apiKey, err := s.GetConfigValue(ConfigKeyOctoPrintAPIKey)
	if err != nil {
		return false, fmt.Errorf("failed to check first run status: %w", err)
	}
	return apiKey == "", nil
}

// AddHistory appends a dispatched reminder to the history
func (s *Store) AddHistory(record ReminderRecord) error {
	_, err := s.db.Exec(
		"INSERT INTO reminder_history (job_name, finished_at, elapsed_seconds, tier, message, sinks, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		record.JobName, record.FinishedAt, record.ElapsedSeconds, record.Tier, record.Message, record.Sinks, record.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add history record: %w", err)
	}
	return nil
}

// GetHistory returns the most recent reminder records, newest first
func (s *Store) GetHistory(limit int) ([]ReminderRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, job_name, finished_at, elapsed_seconds, tier, message, sinks, sent_at FROM reminder_history ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := make([]ReminderRecord, 0, limit)
	for rows.Next() {
		var record ReminderRecord
		if err := rows.Scan(&record.ID, &record.JobName, &record.FinishedAt, &record.ElapsedSeconds,
			&record.Tier, &record.Message, &record.Sinks, &record.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}
