package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir       string   `json:"data_dir"`
	LogLevel      string   `json:"log_level"`
	MaxConcurrent int      `json:"max_concurrent"`
	TickTimeout   Duration `json:"tick_timeout"`
	Engine        struct {
		BaseURL   string `json:"base_url"`
		APIKey    string `json:"api_key"`
		MaxTokens int    `json:"max_tokens"`
	} `json:"engine"`
	Defaults struct {
		Model              string   `json:"model"`
		HeartbeatInterval  Duration `json:"heartbeat_interval"`
		MaxContextMessages int      `json:"max_context_messages"`
	} `json:"defaults"`
	ActiveHours struct {
		StartHour int `json:"start_hour"`
		EndHour   int `json:"end_hour"`
	} `json:"active_hours"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// Duration marshals as a string ("15m") so the config file stays readable.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".vigild"),
		LogLevel:      "info",
		MaxConcurrent: 4,
		TickTimeout:   Duration(90 * time.Second),
	}
	cfg.Engine.BaseURL = "https://api.anthropic.com"
	cfg.Engine.MaxTokens = 1024
	cfg.Defaults.Model = "sonnet-4"
	cfg.Defaults.HeartbeatInterval = Duration(15 * time.Minute)
	cfg.Defaults.MaxContextMessages = 50

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Engine.APIKey = apiKey
	}
	if baseURL := os.Getenv("ANTHROPIC_BASE_URL"); baseURL != "" {
		cfg.Engine.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

// InActiveWindow reports whether t falls inside the configured active-hour
// window. A window with StartHour == EndHour is disabled and always passes.
// Windows that wrap midnight (e.g. 22 to 8) are supported.
func (c *Config) InActiveWindow(t time.Time) bool {
	start, end := c.ActiveHours.StartHour, c.ActiveHours.EndHour
	if start == end {
		return true
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
