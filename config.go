package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Settings holds the runtime settings stored in the database. The reminder
// engine re-reads them on every tick, so dashboard edits apply immediately.
type Settings struct {
	Enabled             bool   `json:"enabled"`
	IntervalSeconds     int    `json:"interval_seconds"`
	StartDelaySeconds   int    `json:"start_delay_seconds"`
	TemplateUnderMinute string `json:"template_under_minute"`
	TemplateUnderHour   string `json:"template_under_hour"`
	TemplateUnderDay    string `json:"template_under_day"`
	TemplateOverDay     string `json:"template_over_day"`
	SendLCD             bool   `json:"send_lcd"`
	SendPopup           bool   `json:"send_popup"`
	WebhookEnabled      bool   `json:"webhook_enabled"`
	WebhookURL          string `json:"webhook_url"`
	WebhookUsername     string `json:"webhook_username"`
	WebhookPassword     string `json:"webhook_password"`
	OctoPrintURL        string `json:"octoprint_url"`
	OctoPrintAPIKey     string `json:"octoprint_api_key"`
	PollInterval        int    `json:"poll_interval_seconds"`
}

// BootstrapConfig is the infrastructure configuration read from
// afterprint.toml before the database opens. Everything else lives in the
// database and is editable from the dashboard.
type BootstrapConfig struct {
	Web struct {
		Host string `toml:"host"`
		Port string `toml:"port"`
	} `toml:"web"`
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	OctoPrint struct {
		URL    string `toml:"url"`
		APIKey string `toml:"api_key"`
	} `toml:"octoprint"`
}

// LoadSettings loads runtime settings from the database, falling back to
// defaults for missing or unparseable values.
func LoadSettings(store *Store) (*Settings, error) {
	values, err := store.GetAllConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings from database: %w", err)
	}

	settings := &Settings{
		Enabled:             configBool(values, ConfigKeyEnabled, true),
		IntervalSeconds:     configInt(values, ConfigKeyIntervalSeconds, DefaultIntervalSeconds),
		StartDelaySeconds:   configInt(values, ConfigKeyStartDelaySeconds, DefaultStartDelaySeconds),
		TemplateUnderMinute: configString(values, ConfigKeyTemplateUnderMinute, DefaultTemplateUnderMinute),
		TemplateUnderHour:   configString(values, ConfigKeyTemplateUnderHour, DefaultTemplateUnderHour),
		TemplateUnderDay:    configString(values, ConfigKeyTemplateUnderDay, DefaultTemplateUnderDay),
		TemplateOverDay:     configString(values, ConfigKeyTemplateOverDay, DefaultTemplateOverDay),
		SendLCD:             configBool(values, ConfigKeySendLCD, true),
		SendPopup:           configBool(values, ConfigKeySendPopup, false),
		WebhookEnabled:      configBool(values, ConfigKeyWebhookEnabled, false),
		WebhookURL:          values[ConfigKeyWebhookURL],
		WebhookUsername:     values[ConfigKeyWebhookUsername],
		WebhookPassword:     values[ConfigKeyWebhookPassword],
		OctoPrintURL:        configString(values, ConfigKeyOctoPrintURL, DefaultOctoPrintURL),
		OctoPrintAPIKey:     values[ConfigKeyOctoPrintAPIKey],
		PollInterval:        configInt(values, ConfigKeyPollInterval, DefaultPollInterval),
	}

	return settings, nil
}

func configBool(values map[string]string, key string, fallback bool) bool {
	if raw, exists := values[key]; exists {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func configInt(values map[string]string, key string, fallback int) int {
	if raw, exists := values[key]; exists {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func configString(values map[string]string, key, fallback string) string {
	if raw, exists := values[key]; exists && raw != "" {
		return raw
	}
	return fallback
}

// ValidateSettings checks settings bounds before they are persisted
func ValidateSettings(s *Settings) error {
	if s.IntervalSeconds < MinIntervalSeconds || s.IntervalSeconds > MaxIntervalSeconds {
		return fmt.Errorf("interval must be between %d and %d seconds", MinIntervalSeconds, MaxIntervalSeconds)
	}
	if s.StartDelaySeconds < 0 || s.StartDelaySeconds > MaxStartDelaySeconds {
		return fmt.Errorf("start delay must be between 0 and %d seconds", MaxStartDelaySeconds)
	}
	if s.PollInterval < MinPollInterval || s.PollInterval > MaxPollInterval {
		return fmt.Errorf("poll interval must be between %d and %d seconds", MinPollInterval, MaxPollInterval)
	}

	templates := map[string]string{
		"under minute": s.TemplateUnderMinute,
		"under hour":   s.TemplateUnderHour,
		"under day":    s.TemplateUnderDay,
		"over day":     s.TemplateOverDay,
	}
	for name, tmpl := range templates {
		if err := ValidateTemplate(tmpl); err != nil {
			return fmt.Errorf("%s template is invalid: %w", name, err)
		}
	}

	if err := validateBaseURL(s.OctoPrintURL); err != nil {
		return fmt.Errorf("octoprint URL is invalid: %w", err)
	}
	if s.WebhookEnabled && s.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required when the webhook sink is enabled")
	}
	if s.WebhookURL != "" {
		if err := validateBaseURL(s.WebhookURL); err != nil {
			return fmt.Errorf("webhook URL is invalid: %w", err)
		}
	}

	return nil
}

// validateBaseURL validates an http or https base URL
func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL host cannot be empty")
	}
	return nil
}

// ApplySettingsUpdate validates a key-value update against the current
// settings and persists it only when the merged result is valid. Returns the
// merged settings.
func ApplySettingsUpdate(store *Store, updates map[string]string) (*Settings, error) {
	values, err := store.GetAllConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load current settings: %w", err)
	}

	for key, value := range updates {
		if _, known := values[key]; !known {
			return nil, fmt.Errorf("unknown setting: %s", key)
		}
		values[key] = value
	}

	merged := &Settings{
		Enabled:             configBool(values, ConfigKeyEnabled, true),
		IntervalSeconds:     configInt(values, ConfigKeyIntervalSeconds, DefaultIntervalSeconds),
		StartDelaySeconds:   configInt(values, ConfigKeyStartDelaySeconds, DefaultStartDelaySeconds),
		TemplateUnderMinute: configString(values, ConfigKeyTemplateUnderMinute, DefaultTemplateUnderMinute),
		TemplateUnderHour:   configString(values, ConfigKeyTemplateUnderHour, DefaultTemplateUnderHour),
		TemplateUnderDay:    configString(values, ConfigKeyTemplateUnderDay, DefaultTemplateUnderDay),
		TemplateOverDay:     configString(values, ConfigKeyTemplateOverDay, DefaultTemplateOverDay),
		SendLCD:             configBool(values, ConfigKeySendLCD, true),
		SendPopup:           configBool(values, ConfigKeySendPopup, false),
		WebhookEnabled:      configBool(values, ConfigKeyWebhookEnabled, false),
		WebhookURL:          values[ConfigKeyWebhookURL],
		WebhookUsername:     values[ConfigKeyWebhookUsername],
		WebhookPassword:     values[ConfigKeyWebhookPassword],
		OctoPrintURL:        configString(values, ConfigKeyOctoPrintURL, DefaultOctoPrintURL),
		OctoPrintAPIKey:     values[ConfigKeyOctoPrintAPIKey],
		PollInterval:        configInt(values, ConfigKeyPollInterval, DefaultPollInterval),
	}

	if err := ValidateSettings(merged); err != nil {
		return nil, err
	}

	for key, value := range updates {
		if err := store.SetConfigValue(key, value); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// LoadBootstrapConfig reads afterprint.toml from the explicit path when one
// is given, otherwise from the first search path that has one, then applies
// environment overrides. A missing file just means defaults; a malformed
// file is a startup error.
func LoadBootstrapConfig(explicitPath string) (*BootstrapConfig, error) {
	cfg := &BootstrapConfig{}
	cfg.Web.Host = DefaultWebHost
	cfg.Web.Port = DefaultWebPort

	path := explicitPath
	if path == "" {
		path = os.Getenv("AFTERPRINT_CONFIG")
	}
	if path == "" {
		for _, candidate := range getConfigSearchPaths(DefaultConfigFileName) {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// getConfigSearchPaths returns an ordered list of paths to search for the
// bootstrap config file
func getConfigSearchPaths(filename string) []string {
	var searchPaths []string

	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "AfterPrint", filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "AfterPrint", filename))
	default:
		searchPaths = append(searchPaths, filepath.Join("/etc/afterprint", filename))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "AfterPrint", filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", "AfterPrint", filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "afterprint", filename))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// applyEnvOverrides applies environment variable overrides on top of the
// config file
func applyEnvOverrides(cfg *BootstrapConfig) {
	if val := os.Getenv("AFTERPRINT_LISTEN_ADDR"); val != "" {
		if host, port, err := net.SplitHostPort(val); err == nil {
			cfg.Web.Host = host
			cfg.Web.Port = port
		}
	}
	if val := os.Getenv("AFTERPRINT_OCTOPRINT_URL"); val != "" {
		cfg.OctoPrint.URL = val
	}
	if val := os.Getenv("AFTERPRINT_OCTOPRINT_KEY"); val != "" {
		cfg.OctoPrint.APIKey = val
	}
}

// getDBFilePath returns the database file path, checking the environment
// variable first
func getDBFilePath(cfg *BootstrapConfig) string {
	if dbPath := os.Getenv("AFTERPRINT_DB_PATH"); dbPath != "" {
		return filepath.Join(dbPath, DefaultDBFileName)
	}
	if cfg.Database.Path != "" {
		return cfg.Database.Path
	}
	return DefaultDBFileName
}
