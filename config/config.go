package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultPath is the config file read when no path is given
const DefaultPath = "config.ini"

// Config holds application configuration
type Config struct {
	// API settings
	APIPort         string
	ShutdownTimeout time.Duration

	// Wizard settings
	SubmitLatency   time.Duration
	SuccessHold     time.Duration
	RequireLiveness bool
	CropDocument    bool
	CaptureMode     string
	SessionTTL      time.Duration
	CleanupInterval time.Duration

	// Inbox settings
	RefreshInterval time.Duration
	RemovalDelay    time.Duration
	Locale          string

	// Search settings
	SearchLatency time.Duration

	// Event settings
	AllowedOrigins []string

	// Log settings
	LogLevel  string
	LogFormat string
	DBDebug   bool
}

// LoadConfig loads configuration from defaults, environment variables and
// the config file at path, in that order of increasing precedence
func LoadConfig(path string) *Config {
	config := &Config{
		// API settings
		APIPort:         getEnv("API_PORT", ":8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		// Wizard settings
		SubmitLatency:   getEnvDuration("WIZARD_SUBMIT_LATENCY", 1000*time.Millisecond),
		SuccessHold:     getEnvDuration("WIZARD_SUCCESS_HOLD", 1500*time.Millisecond),
		RequireLiveness: getEnvBool("WIZARD_REQUIRE_LIVENESS", true),
		CropDocument:    getEnvBool("WIZARD_CROP_DOCUMENT", true),
		CaptureMode:     getEnv("WIZARD_CAPTURE_MODE", "file_input"),
		SessionTTL:      getEnvDuration("WIZARD_SESSION_TTL", 30*time.Minute),
		CleanupInterval: getEnvDuration("WIZARD_CLEANUP_INTERVAL", 5*time.Minute),

		// Inbox settings
		RefreshInterval: getEnvDuration("INBOX_REFRESH_INTERVAL", 60*time.Second),
		RemovalDelay:    getEnvDuration("INBOX_REMOVAL_DELAY", 900*time.Millisecond),
		Locale:          getEnv("LOCALE", "en"),

		// Search settings
		SearchLatency: getEnvDuration("SEARCH_LATENCY", 1000*time.Millisecond),

		// Event settings
		AllowedOrigins: splitList(getEnv("EVENT_ALLOWED_ORIGINS", "")),

		// Log settings
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		DBDebug:   getEnvBool("DB_DEBUG", false),
	}

	if path == "" {
		path = DefaultPath
	}

	// Try to load from the config file
	if err := loadFromINI(config, path); err != nil {
		log.Printf("Warning: Failed to load %s: %v", path, err)
		log.Println("Using environment variables or defaults")
	}

	return config
}

// loadFromINI loads configuration from an ini file
func loadFromINI(config *Config, path string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}

	// API section
	api := cfg.Section("api")
	setString(api, "port", &config.APIPort)
	setDuration(api, "shutdown_timeout", &config.ShutdownTimeout)

	// Wizard section
	wizard := cfg.Section("wizard")
	setDuration(wizard, "submit_latency", &config.SubmitLatency)
	setDuration(wizard, "success_hold", &config.SuccessHold)
	setBool(wizard, "require_liveness", &config.RequireLiveness)
	setBool(wizard, "crop_document", &config.CropDocument)
	setString(wizard, "capture_mode", &config.CaptureMode)
	setDuration(wizard, "session_ttl", &config.SessionTTL)
	setDuration(wizard, "cleanup_interval", &config.CleanupInterval)

	// Inbox section
	inbox := cfg.Section("inbox")
	setDuration(inbox, "refresh_interval", &config.RefreshInterval)
	setDuration(inbox, "removal_delay", &config.RemovalDelay)
	setString(inbox, "locale", &config.Locale)

	// Search section
	setDuration(cfg.Section("search"), "latency", &config.SearchLatency)

	// Events section
	if origins := cfg.Section("events").Key("allowed_origins").String(); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// Log section
	logSection := cfg.Section("log")
	setString(logSection, "level", &config.LogLevel)
	setString(logSection, "format", &config.LogFormat)
	setBool(logSection, "db_debug", &config.DBDebug)

	return nil
}

func setString(section *ini.Section, key string, dst *string) {
	if v := section.Key(key).String(); v != "" {
		*dst = v
	}
}

func setDuration(section *ini.Section, key string, dst *time.Duration) {
	if !section.HasKey(key) {
		return
	}
	if d, err := section.Key(key).Duration(); err == nil {
		*dst = d
	} else {
		log.Printf("Warning: invalid duration for [%s] %s: %v", section.Name(), key, err)
	}
}

func setBool(section *ini.Section, key string, dst *bool) {
	if !section.HasKey(key) {
		return
	}
	if b, err := section.Key(key).Bool(); err == nil {
		*dst = b
	} else {
		log.Printf("Warning: invalid boolean for [%s] %s: %v", section.Name(), key, err)
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration in %s: %q", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Warning: invalid boolean in %s: %q", key, value)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
