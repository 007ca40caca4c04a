package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validSettings() *Settings {
	return &Settings{
		Enabled:             true,
		IntervalSeconds:     60,
		StartDelaySeconds:   300,
		TemplateUnderMinute: DefaultTemplateUnderMinute,
		TemplateUnderHour:   DefaultTemplateUnderHour,
		TemplateUnderDay:    DefaultTemplateUnderDay,
		TemplateOverDay:     DefaultTemplateOverDay,
		SendLCD:             true,
		OctoPrintURL:        "http://localhost:5000",
		PollInterval:        30,
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *Settings)
		wantErr bool
	}{
		{"Defaults are valid", func(s *Settings) {}, false},

		// Interval bounds
		{"Interval at minimum", func(s *Settings) { s.IntervalSeconds = MinIntervalSeconds }, false},
		{"Interval at maximum", func(s *Settings) { s.IntervalSeconds = MaxIntervalSeconds }, false},
		{"Interval zero", func(s *Settings) { s.IntervalSeconds = 0 }, true},
		{"Interval negative", func(s *Settings) { s.IntervalSeconds = -60 }, true},
		{"Interval above maximum", func(s *Settings) { s.IntervalSeconds = MaxIntervalSeconds + 1 }, true},

		// Start delay bounds
		{"Start delay zero", func(s *Settings) { s.StartDelaySeconds = 0 }, false},
		{"Start delay at maximum", func(s *Settings) { s.StartDelaySeconds = MaxStartDelaySeconds }, false},
		{"Start delay negative", func(s *Settings) { s.StartDelaySeconds = -1 }, true},
		{"Start delay above maximum", func(s *Settings) { s.StartDelaySeconds = MaxStartDelaySeconds + 1 }, true},

		// Poll interval bounds
		{"Poll interval at minimum", func(s *Settings) { s.PollInterval = MinPollInterval }, false},
		{"Poll interval below minimum", func(s *Settings) { s.PollInterval = MinPollInterval - 1 }, true},
		{"Poll interval above maximum", func(s *Settings) { s.PollInterval = MaxPollInterval + 1 }, true},

		// Template validation
		{"Unknown placeholder", func(s *Settings) { s.TemplateUnderHour = "Done {bogus} ago" }, true},
		{"Unclosed placeholder", func(s *Settings) { s.TemplateOverDay = "Done {minutes" }, true},
		{"Template without placeholders", func(s *Settings) { s.TemplateUnderMinute = "Print finished!" }, false},

		// URL validation
		{"OctoPrint URL empty", func(s *Settings) { s.OctoPrintURL = "" }, true},
		{"OctoPrint URL wrong scheme", func(s *Settings) { s.OctoPrintURL = "ftp://printer:5000" }, true},
		{"OctoPrint URL without host", func(s *Settings) { s.OctoPrintURL = "http://" }, true},
		{"OctoPrint URL https", func(s *Settings) { s.OctoPrintURL = "https://printer.local" }, false},

		// Webhook coupling
		{"Webhook enabled without URL", func(s *Settings) { s.WebhookEnabled = true }, true},
		{"Webhook enabled with URL", func(s *Settings) {
			s.WebhookEnabled = true
			s.WebhookURL = "https://example.com/hook"
		}, false},
		{"Webhook disabled with invalid URL", func(s *Settings) { s.WebhookURL = "not a url" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := validSettings()
			tt.modify(settings)
			err := ValidateSettings(settings)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"HTTP with port", "http://localhost:5000", false},
		{"HTTPS", "https://example.com", false},
		{"Empty", "", true},
		{"Wrong scheme", "ftp://example.com", true},
		{"Missing host", "http://", true},
		{"Missing scheme", "localhost:5000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBaseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBaseURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestLoadSettingsFallbacks(t *testing.T) {
	store := newTestStore(t)

	// Corrupted values fall back to defaults instead of failing the load
	if err := store.SetConfigValue(ConfigKeyIntervalSeconds, "not-a-number"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}
	if err := store.SetConfigValue(ConfigKeyEnabled, "maybe"); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}
	if err := store.SetConfigValue(ConfigKeyTemplateUnderHour, ""); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}

	settings, err := LoadSettings(store)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if settings.IntervalSeconds != DefaultIntervalSeconds {
		t.Errorf("IntervalSeconds = %d, want fallback %d", settings.IntervalSeconds, DefaultIntervalSeconds)
	}
	if !settings.Enabled {
		t.Error("Enabled = false, want fallback true")
	}
	if settings.TemplateUnderHour != DefaultTemplateUnderHour {
		t.Errorf("TemplateUnderHour = %q, want fallback %q", settings.TemplateUnderHour, DefaultTemplateUnderHour)
	}
}

func TestApplySettingsUpdate(t *testing.T) {
	t.Run("Valid update persists", func(t *testing.T) {
		store := newTestStore(t)

		merged, err := ApplySettingsUpdate(store, map[string]string{
			ConfigKeyIntervalSeconds: "120",
			ConfigKeySendPopup:       "true",
		})
		if err != nil {
			t.Fatalf("ApplySettingsUpdate() error = %v", err)
		}
		if merged.IntervalSeconds != 120 {
			t.Errorf("merged interval = %d, want 120", merged.IntervalSeconds)
		}
		if !merged.SendPopup {
			t.Error("merged SendPopup = false, want true")
		}

		value, err := store.GetConfigValue(ConfigKeyIntervalSeconds)
		if err != nil {
			t.Fatalf("GetConfigValue() error = %v", err)
		}
		if value != "120" {
			t.Errorf("persisted interval = %q, want 120", value)
		}
	})

	t.Run("Unknown key rejected", func(t *testing.T) {
		store := newTestStore(t)

		_, err := ApplySettingsUpdate(store, map[string]string{"no_such_setting": "1"})
		if err == nil {
			t.Fatal("ApplySettingsUpdate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "unknown setting: no_such_setting") {
			t.Errorf("error = %q, want unknown setting", err.Error())
		}
	})

	t.Run("Invalid merge leaves store untouched", func(t *testing.T) {
		store := newTestStore(t)

		if _, err := ApplySettingsUpdate(store, map[string]string{ConfigKeyIntervalSeconds: "0"}); err == nil {
			t.Fatal("ApplySettingsUpdate() expected error, got nil")
		}

		value, err := store.GetConfigValue(ConfigKeyIntervalSeconds)
		if err != nil {
			t.Fatalf("GetConfigValue() error = %v", err)
		}
		if value != "60" {
			t.Errorf("interval after rejected update = %q, want 60", value)
		}
	})

	t.Run("Webhook enable requires URL in same update", func(t *testing.T) {
		store := newTestStore(t)

		if _, err := ApplySettingsUpdate(store, map[string]string{ConfigKeyWebhookEnabled: "true"}); err == nil {
			t.Fatal("enabling webhook without URL did not error")
		}

		merged, err := ApplySettingsUpdate(store, map[string]string{
			ConfigKeyWebhookEnabled: "true",
			ConfigKeyWebhookURL:     "https://example.com/hook",
		})
		if err != nil {
			t.Fatalf("ApplySettingsUpdate() error = %v", err)
		}
		if !merged.WebhookEnabled || merged.WebhookURL != "https://example.com/hook" {
			t.Errorf("merged webhook = %v %q", merged.WebhookEnabled, merged.WebhookURL)
		}
	})
}

func TestConfigHelpers(t *testing.T) {
	values := map[string]string{
		"flag_true": "true",
		"flag_junk": "maybe",
		"num_ok":    "42",
		"num_junk":  "forty-two",
		"str_set":   "hello",
		"str_empty": "",
	}

	if got := configBool(values, "flag_true", false); !got {
		t.Error("configBool(flag_true) = false")
	}
	if got := configBool(values, "flag_junk", true); !got {
		t.Error("configBool(flag_junk) did not fall back")
	}
	if got := configBool(values, "flag_missing", true); !got {
		t.Error("configBool(flag_missing) did not fall back")
	}
	if got := configInt(values, "num_ok", 0); got != 42 {
		t.Errorf("configInt(num_ok) = %d, want 42", got)
	}
	if got := configInt(values, "num_junk", 7); got != 7 {
		t.Errorf("configInt(num_junk) = %d, want fallback 7", got)
	}
	if got := configString(values, "str_set", "fallback"); got != "hello" {
		t.Errorf("configString(str_set) = %q, want hello", got)
	}
	if got := configString(values, "str_empty", "fallback"); got != "fallback" {
		t.Errorf("configString(str_empty) = %q, want fallback", got)
	}
}

func TestLoadBootstrapConfig(t *testing.T) {
	t.Run("Explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		content := `[web]
host = "127.0.0.1"
port = "9999"

[database]
path = "/var/lib/afterprint/afterprint.db"

[octoprint]
url = "http://printer.local:5000"
api_key = "ABC123"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadBootstrapConfig(path)
		if err != nil {
			t.Fatalf("LoadBootstrapConfig() error = %v", err)
		}
		if cfg.Web.Host != "127.0.0.1" || cfg.Web.Port != "9999" {
			t.Errorf("web = %s:%s, want 127.0.0.1:9999", cfg.Web.Host, cfg.Web.Port)
		}
		if cfg.Database.Path != "/var/lib/afterprint/afterprint.db" {
			t.Errorf("database path = %q", cfg.Database.Path)
		}
		if cfg.OctoPrint.URL != "http://printer.local:5000" || cfg.OctoPrint.APIKey != "ABC123" {
			t.Errorf("octoprint = %q key %q", cfg.OctoPrint.URL, cfg.OctoPrint.APIKey)
		}
	})

	t.Run("Partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		content := `[octoprint]
url = "http://printer.local:5000"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadBootstrapConfig(path)
		if err != nil {
			t.Fatalf("LoadBootstrapConfig() error = %v", err)
		}
		if cfg.Web.Host != DefaultWebHost || cfg.Web.Port != DefaultWebPort {
			t.Errorf("web = %s:%s, want defaults %s:%s", cfg.Web.Host, cfg.Web.Port, DefaultWebHost, DefaultWebPort)
		}
	})

	t.Run("Explicit file missing", func(t *testing.T) {
		_, err := LoadBootstrapConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if err == nil {
			t.Error("LoadBootstrapConfig() expected error for missing explicit file")
		}
	})

	t.Run("Malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		if err := os.WriteFile(path, []byte("[web\nhost ="), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadBootstrapConfig(path); err == nil {
			t.Error("LoadBootstrapConfig() expected error for malformed file")
		}
	})

	t.Run("Environment path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		content := `[web]
port = "7777"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("AFTERPRINT_CONFIG", path)

		cfg, err := LoadBootstrapConfig("")
		if err != nil {
			t.Fatalf("LoadBootstrapConfig() error = %v", err)
		}
		if cfg.Web.Port != "7777" {
			t.Errorf("port = %q, want 7777", cfg.Web.Port)
		}
	})

	t.Run("Environment overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		content := `[octoprint]
url = "http://from-file:5000"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("AFTERPRINT_LISTEN_ADDR", "127.0.0.1:9000")
		t.Setenv("AFTERPRINT_OCTOPRINT_URL", "http://from-env:5000")
		t.Setenv("AFTERPRINT_OCTOPRINT_KEY", "ENVKEY")

		cfg, err := LoadBootstrapConfig(path)
		if err != nil {
			t.Fatalf("LoadBootstrapConfig() error = %v", err)
		}
		if cfg.Web.Host != "127.0.0.1" || cfg.Web.Port != "9000" {
			t.Errorf("web = %s:%s, want 127.0.0.1:9000", cfg.Web.Host, cfg.Web.Port)
		}
		if cfg.OctoPrint.URL != "http://from-env:5000" {
			t.Errorf("octoprint URL = %q, want env override", cfg.OctoPrint.URL)
		}
		if cfg.OctoPrint.APIKey != "ENVKEY" {
			t.Errorf("octoprint key = %q, want ENVKEY", cfg.OctoPrint.APIKey)
		}
	})

	t.Run("Invalid listen address ignored", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "afterprint.toml")
		if err := os.WriteFile(path, []byte(""), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		t.Setenv("AFTERPRINT_LISTEN_ADDR", "no-port-here")

		cfg, err := LoadBootstrapConfig(path)
		if err != nil {
			t.Fatalf("LoadBootstrapConfig() error = %v", err)
		}
		if cfg.Web.Host != DefaultWebHost || cfg.Web.Port != DefaultWebPort {
			t.Errorf("web = %s:%s, want defaults", cfg.Web.Host, cfg.Web.Port)
		}
	})
}

func TestGetDBFilePath(t *testing.T) {
	t.Run("Environment directory wins", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("AFTERPRINT_DB_PATH", dir)

		cfg := &BootstrapConfig{}
		cfg.Database.Path = "/somewhere/else.db"
		if got := getDBFilePath(cfg); got != filepath.Join(dir, DefaultDBFileName) {
			t.Errorf("getDBFilePath() = %q, want under %q", got, dir)
		}
	})

	t.Run("Config path", func(t *testing.T) {
		t.Setenv("AFTERPRINT_DB_PATH", "")

		cfg := &BootstrapConfig{}
		cfg.Database.Path = "/somewhere/else.db"
		if got := getDBFilePath(cfg); got != "/somewhere/else.db" {
			t.Errorf("getDBFilePath() = %q, want /somewhere/else.db", got)
		}
	})

	t.Run("Default", func(t *testing.T) {
		t.Setenv("AFTERPRINT_DB_PATH", "")

		if got := getDBFilePath(&BootstrapConfig{}); got != DefaultDBFileName {
			t.Errorf("getDBFilePath() = %q, want %q", got, DefaultDBFileName)
		}
	})
}
