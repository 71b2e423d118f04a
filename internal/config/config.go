// Package config loads and validates worker and supervisor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultHashtag is watched when HASHTAG is empty.
const DefaultHashtag = "animaymg"

// ErrMissingWebhook is returned when normal mode runs without a webhook URL.
var ErrMissingWebhook = errors.New("DISCORD_WEBHOOK_URL is required")

// Worker captures everything the crawl worker process needs.
type Worker struct {
	WebhookURL     string
	Hashtags       []string
	PollInterval   time.Duration
	MaxTextLen     int
	SeenPath       string
	SeenDSN        string
	SeenTable      string
	StoragePath    string
	OverlayURL     string
	OverlayEnabled bool
	Headless       bool
	InitLogin      bool
	DebugPost      bool
	BrowserPath    string
	Development    bool
	Pace           time.Duration
	SearchBaseURL  string
}

// Supervisor captures the knobs of the supervisor HTTP process.
type Supervisor struct {
	EnvFile           string
	Port              int
	LogFile           string
	PIDFile           string
	SupervisorPIDFile string
	MaxLogBytes       int64
	KeepLogBytes      int64
	Highlight         []string
	BrowserMarker     string
	BrowserPath       string
	BrowserInstallCmd string
	WorkerSignature   string
	Development       bool
}

// LoadWorker builds a Worker from the env file (optional) and the process environment.
func LoadWorker(envFile string) (Worker, error) {
	v, err := newViper(envFile)
	if err != nil {
		return Worker{}, err
	}
	setDefaults(v, workerDefaults)

	poll, err := intValue(v, "POLL_SECONDS")
	if err != nil {
		return Worker{}, err
	}
	maxLen, err := intValue(v, "MAX_TEXT_LEN")
	if err != nil {
		return Worker{}, err
	}
	pace, err := intValue(v, "PACE_MS")
	if err != nil {
		return Worker{}, err
	}

	cfg := Worker{
		WebhookURL:     strings.TrimSpace(v.GetString("DISCORD_WEBHOOK_URL")),
		Hashtags:       ParseHashtags(v.GetString("HASHTAG")),
		PollInterval:   time.Duration(poll) * time.Second,
		MaxTextLen:     maxLen,
		SeenPath:       stringValue(v, "SEEN_PATH"),
		SeenDSN:        strings.TrimSpace(v.GetString("SEEN_DSN")),
		SeenTable:      stringValue(v, "SEEN_TABLE"),
		StoragePath:    stringValue(v, "STORAGE_PATH"),
		OverlayURL:     stringValue(v, "OVERLAY_POST_URL"),
		OverlayEnabled: v.GetString("OVERLAY_ENABLED") == "1",
		Headless:       strings.ToLower(strings.TrimSpace(v.GetString("HEADLESS"))) != "false",
		InitLogin:      v.GetString("INIT_LOGIN") == "1",
		DebugPost:      v.GetString("DEBUG_POST") == "1",
		BrowserPath:    strings.TrimSpace(v.GetString("BROWSER_PATH")),
		Development:    boolValue(v, "LOG_DEVELOPMENT", true),
		Pace:           time.Duration(pace) * time.Millisecond,
		SearchBaseURL:  stringValue(v, "SEARCH_BASE_URL"),
	}
	if err := cfg.Validate(); err != nil {
		return Worker{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Worker) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_SECONDS must be > 0")
	}
	if c.MaxTextLen < 0 {
		return fmt.Errorf("MAX_TEXT_LEN must be >= 0")
	}
	if c.Pace < 0 {
		return fmt.Errorf("PACE_MS must be >= 0")
	}
	if !c.InitLogin && c.WebhookURL == "" {
		return ErrMissingWebhook
	}
	return nil
}

// LoadSupervisor builds a Supervisor config from the env file and process environment.
func LoadSupervisor(envFile string) (Supervisor, error) {
	v, err := newViper(envFile)
	if err != nil {
		return Supervisor{}, err
	}
	setDefaults(v, supervisorDefaults)

	port, err := intValue(v, "GUI_PORT")
	if err != nil {
		return Supervisor{}, err
	}
	maxBytes, err := intValue(v, "MAX_LOG_BYTES")
	if err != nil {
		return Supervisor{}, err
	}
	keepBytes, err := intValue(v, "KEEP_LOG_BYTES")
	if err != nil {
		return Supervisor{}, err
	}
	if keepBytes <= 0 {
		keepBytes = maxBytes / 2
	}

	cfg := Supervisor{
		EnvFile:           envFile,
		Port:              port,
		LogFile:           stringValue(v, "LOG_FILE"),
		PIDFile:           stringValue(v, "PID_FILE"),
		SupervisorPIDFile: stringValue(v, "SUPERVISOR_PID_FILE"),
		MaxLogBytes:       int64(maxBytes),
		KeepLogBytes:      int64(keepBytes),
		Highlight:         SplitList(v.GetString("HIGHLIGHT_IDS")),
		BrowserMarker:     stringValue(v, "BROWSER_MARKER"),
		BrowserPath:       strings.TrimSpace(v.GetString("BROWSER_PATH")),
		BrowserInstallCmd: strings.TrimSpace(v.GetString("BROWSER_INSTALL_CMD")),
		WorkerSignature:   strings.TrimSpace(v.GetString("WORKER_SIGNATURE")),
		Development:       boolValue(v, "LOG_DEVELOPMENT", true),
	}
	if err := cfg.Validate(); err != nil {
		return Supervisor{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Supervisor) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GUI_PORT must be between 1 and 65535")
	}
	if c.LogFile == "" {
		return fmt.Errorf("LOG_FILE must be set")
	}
	return nil
}

// ParseHashtags splits a comma-separated HASHTAG value, strips any leading
// '#' or '＃' and falls back to DefaultHashtag when nothing remains.
func ParseHashtags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimLeft(strings.TrimSpace(part), "#＃")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return []string{DefaultHashtag}
	}
	return tags
}

// SplitList splits a comma-separated list, trimming entries and dropping empties.
func SplitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func newViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	if envFile == "" {
		return v, nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("stat env file: %w", err)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return v, nil
}

var workerDefaults = map[string]any{
	"HASHTAG":          DefaultHashtag,
	"POLL_SECONDS":     30,
	"MAX_TEXT_LEN":     0,
	"SEEN_PATH":        "./seen_ids.txt",
	"SEEN_TABLE":       "seen_ids",
	"STORAGE_PATH":     "./storageState.json",
	"OVERLAY_POST_URL": "http://localhost:3000/overlay/message",
	"OVERLAY_ENABLED":  "1",
	"HEADLESS":         "true",
	"INIT_LOGIN":       "0",
	"DEBUG_POST":       "0",
	"PACE_MS":          400,
	"SEARCH_BASE_URL":  "https://x.com/search",
}

var supervisorDefaults = map[string]any{
	"GUI_PORT":            3000,
	"LOG_FILE":            "./x2discord.log",
	"PID_FILE":            "./x2discord.pid",
	"SUPERVISOR_PID_FILE": "./gui.pid",
	"MAX_LOG_BYTES":       5 * 1024 * 1024,
	"KEEP_LOG_BYTES":      1 * 1024 * 1024,
	"BROWSER_MARKER":      "./.browser-installed",
}

func setDefaults(v *viper.Viper, defaults map[string]any) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

// intValue treats an empty value as the registered default.
func intValue(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = defaultOf(key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func stringValue(v *viper.Viper, key string) string {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return defaultOf(key)
	}
	return raw
}

func boolValue(v *viper.Viper, key string, def bool) bool {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// defaultOf is consulted when a key is set but blank, since an explicitly
// empty env var shadows viper's default.
func defaultOf(key string) string {
	if val, ok := workerDefaults[key]; ok {
		return fmt.Sprint(val)
	}
	if val, ok := supervisorDefaults[key]; ok {
		return fmt.Sprint(val)
	}
	return ""
}
