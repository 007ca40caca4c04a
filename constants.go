package main

// Message tiers
const (
	TierUnderMinute = "under_minute"
	TierUnderHour   = "under_hour"
	TierUnderDay    = "under_day"
	TierOverDay     = "over_day"
)

// Printer lifecycle events
const (
	EventPrintDone       = "PrintDone"
	EventPrintStarted    = "PrintStarted"
	EventPrintPaused     = "PrintPaused"
	EventPrintResumed    = "PrintResumed"
	EventPrintCancelled  = "PrintCancelled"
	EventPrintFailed     = "PrintFailed"
	EventSettingsUpdated = "SettingsUpdated"
)

// Default configuration values
const (
	DefaultOctoPrintURL      = "http://localhost:5000"
	DefaultWebPort           = "8090"
	DefaultWebHost           = "0.0.0.0"
	DefaultIntervalSeconds   = 60
	DefaultStartDelaySeconds = 300
	DefaultPollInterval      = 30
	DefaultDBFileName        = "afterprint.db"
	DefaultConfigFileName    = "afterprint.toml"
)

// Default reminder templates, one per tier
const (
	DefaultTemplateUnderMinute = "Print finished {totalSeconds}s ago"
	DefaultTemplateUnderHour   = "Print finished {minutes}m ago"
	DefaultTemplateUnderDay    = "Print finished {hoursMinutes} ago"
	DefaultTemplateOverDay     = "Print finished {daysHoursMinutes} ago"
)

// Database configuration keys
const (
	ConfigKeyEnabled             = "enabled"
	ConfigKeyIntervalSeconds     = "interval_seconds"
	ConfigKeyStartDelaySeconds   = "start_delay_seconds"
	ConfigKeyTemplateUnderMinute = "template_under_minute"
	ConfigKeyTemplateUnderHour   = "template_under_hour"
	ConfigKeyTemplateUnderDay    = "template_under_day"
	ConfigKeyTemplateOverDay     = "template_over_day"
	ConfigKeySendLCD             = "send_lcd"
	ConfigKeySendPopup           = "send_popup"
	ConfigKeyWebhookEnabled      = "webhook_enabled"
	ConfigKeyWebhookURL          = "webhook_url"
	ConfigKeyWebhookUsername     = "webhook_username"
	ConfigKeyWebhookPassword     = "webhook_password"
	ConfigKeyOctoPrintURL        = "octoprint_url"
	ConfigKeyOctoPrintAPIKey     = "octoprint_api_key"
	ConfigKeyPollInterval        = "poll_interval_seconds"
)

// HTTP timeouts
const (
	OctoPrintTimeout     = 10 // seconds
	OctoPrintTestTimeout = 5  // seconds for connection tests from the settings UI
	WebhookTimeout       = 10 // seconds
)

// Settings bounds enforced by validation
const (
	MinIntervalSeconds   = 1
	MaxIntervalSeconds   = 86400
	MaxStartDelaySeconds = 86400
	MinPollInterval      = 5
	MaxPollInterval      = 3600
	MaxSnoozeMinutes     = 1440
)

// MinOctoPrintVersion is the oldest server release the push API integration
// is tested against. Older servers still work, with a startup warning.
const MinOctoPrintVersion = "1.4.0"
