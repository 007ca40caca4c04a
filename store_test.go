package main

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStoreSeedsDefaults(t *testing.T) {
	store := newTestStore(t)

	config, err := store.GetAllConfig()
	if err != nil {
		t.Fatalf("GetAllConfig() error = %v", err)
	}
	if len(config) != 16 {
		t.Errorf("seeded %d config keys, want 16", len(config))
	}

	checks := map[string]string{
		ConfigKeyEnabled:             "true",
		ConfigKeyIntervalSeconds:     "60",
		ConfigKeyStartDelaySeconds:   "300",
		ConfigKeyTemplateUnderMinute: DefaultTemplateUnderMinute,
		ConfigKeyTemplateUnderHour:   DefaultTemplateUnderHour,
		ConfigKeyTemplateUnderDay:    DefaultTemplateUnderDay,
		ConfigKeyTemplateOverDay:     DefaultTemplateOverDay,
		ConfigKeySendLCD:             "true",
		ConfigKeySendPopup:           "false",
		ConfigKeyWebhookEnabled:      "false",
		ConfigKeyOctoPrintURL:        DefaultOctoPrintURL,
		ConfigKeyOctoPrintAPIKey:     "",
		ConfigKeyPollInterval:        "30",
	}
	for key, want := range checks {
		if got, ok := config[key]; !ok {
			t.Errorf("default for %s missing", key)
		} else if got != want {
			t.Errorf("default %s = %q, want %q", key, got, want)
		}
	}
}

func TestStoreReopenKeepsValues(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStore(dbFile)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.SetConfigValue(ConfigKeyIntervalSeconds, "120"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}
	store.Close()

	// Reopening must not reseed over existing values
	store, err = NewStore(dbFile)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	defer store.Close()

	value, err := store.GetConfigValue(ConfigKeyIntervalSeconds)
	if err != nil {
		t.Fatalf("GetConfigValue() error = %v", err)
	}
	if value != "120" {
		t.Errorf("interval after reopen = %q, want 120", value)
	}
}

func TestConfigValueRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetConfigValue(ConfigKeyWebhookURL, "https://example.com/hook"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}
	value, err := store.GetConfigValue(ConfigKeyWebhookURL)
	if err != nil {
		t.Fatalf("GetConfigValue() error = %v", err)
	}
	if value != "https://example.com/hook" {
		t.Errorf("value = %q, want https://example.com/hook", value)
	}

	// Overwrite
	if err := store.SetConfigValue(ConfigKeyWebhookURL, ""); err != nil {
		t.Fatalf("SetConfigValue() overwrite error = %v", err)
	}
	value, err = store.GetConfigValue(ConfigKeyWebhookURL)
	if err != nil {
		t.Fatalf("GetConfigValue() error = %v", err)
	}
	if value != "" {
		t.Errorf("value after overwrite = %q, want empty", value)
	}
}

func TestGetConfigValueUnknownKey(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetConfigValue("no_such_key"); err == nil {
		t.Error("GetConfigValue() expected error for unknown key, got nil")
	}
}

func TestSnapshotDefaults(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if !settings.Enabled {
		t.Error("Enabled = false, want true")
	}
	if settings.IntervalSeconds != DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want %d", settings.IntervalSeconds, DefaultIntervalSeconds)
	}
	if settings.StartDelaySeconds != DefaultStartDelaySeconds {
		t.Errorf("StartDelaySeconds = %d, want %d", settings.StartDelaySeconds, DefaultStartDelaySeconds)
	}
	if settings.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %d, want %d", settings.PollInterval, DefaultPollInterval)
	}
	if !settings.SendLCD {
		t.Error("SendLCD = false, want true")
	}
	if settings.SendPopup {
		t.Error("SendPopup = true, want false")
	}
	if settings.TemplateUnderHour != DefaultTemplateUnderHour {
		t.Errorf("TemplateUnderHour = %q, want %q", settings.TemplateUnderHour, DefaultTemplateUnderHour)
	}
	if settings.OctoPrintURL != DefaultOctoPrintURL {
		t.Errorf("OctoPrintURL = %q, want %q", settings.OctoPrintURL, DefaultOctoPrintURL)
	}
}

func TestIsFirstRun(t *testing.T) {
	store := newTestStore(t)

	firstRun, err := store.IsFirstRun()
	if err != nil {
		t.Fatalf("IsFirstRun() error = %v", err)
	}
	if !firstRun {
		t.Error("IsFirstRun() = false on fresh database")
	}

	if err := store.SetConfigValue(ConfigKeyOctoPrintAPIKey, "ABCDEF123456"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}

	firstRun, err = store.IsFirstRun()
	if err != nil {
		t.Fatalf("IsFirstRun() error = %v", err)
	}
	if firstRun {
		t.Error("IsFirstRun() = true after API key configured")
	}
}

func TestHistory(t *testing.T) {
	store := newTestStore(t)

	records, err := store.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("fresh history has %d records, want 0", len(records))
	}

	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, job := range []string{"first.gcode", "second.gcode", "third.gcode"} {
		err := store.AddHistory(ReminderRecord{
			JobName:        job,
			FinishedAt:     finished,
			ElapsedSeconds: int64(300 * (i + 1)),
			Tier:           TierUnderHour,
			Message:        "Print finished",
			Sinks:          "lcd,popup",
			SentAt:         finished.Add(time.Duration(300*(i+1)) * time.Second),
		})
		if err != nil {
			t.Fatalf("AddHistory(%s) error = %v", job, err)
		}
	}

	records, err = store.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("history has %d records, want 3", len(records))
	}

	// Newest first
	if records[0].JobName != "third.gcode" {
		t.Errorf("records[0].JobName = %q, want third.gcode", records[0].JobName)
	}
	if records[2].JobName != "first.gcode" {
		t.Errorf("records[2].JobName = %q, want first.gcode", records[2].JobName)
	}

	if records[0].ElapsedSeconds != 900 {
		t.Errorf("ElapsedSeconds = %d, want 900", records[0].ElapsedSeconds)
	}
	if records[0].Tier != TierUnderHour {
		t.Errorf("Tier = %q, want %s", records[0].Tier, TierUnderHour)
	}
	if records[0].Sinks != "lcd,popup" {
		t.Errorf("Sinks = %q, want lcd,popup", records[0].Sinks)
	}
	if !records[0].FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", records[0].FinishedAt, finished)
	}

	// Limit applies
	records, err = store.GetHistory(2)
	if err != nil {
		t.Fatalf("GetHistory(2) error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("limited history has %d records, want 2", len(records))
	}
}
