// Package config loads replay engine settings from an optional YAML file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Replay   ReplayConfig   `yaml:"replay"`
	Output   OutputConfig   `yaml:"output"`
	Progress ProgressConfig `yaml:"progress"`
	Log      LogConfig      `yaml:"log"`
}

type BrowserConfig struct {
	Kind     string `yaml:"kind"` // chrome, chromium
	Headless bool   `yaml:"headless"`
	ExecPath string `yaml:"execPath"`
	Device   string `yaml:"device"` // emulation preset name, empty replays as captured
}

type ReplayConfig struct {
	Mode                 string  `yaml:"mode"`  // instant, fast, realistic
	Speed                float64 `yaml:"speed"` // >0 overrides the mode multiplier
	MaxDelayMs           int     `yaml:"maxDelayMs"`
	ElementTimeoutSec    int     `yaml:"elementTimeoutSec"`
	RetryCeiling         int     `yaml:"retryCeiling"`
	BackoffBaseMs        int     `yaml:"backoffBaseMs"`
	NavigationTimeoutSec int     `yaml:"navigationTimeoutSec"`
	ModalSettleMs        int     `yaml:"modalSettleMs"`
}

type OutputConfig struct {
	ScreenshotDir  string `yaml:"screenshotDir"`
	CaptureOnError bool   `yaml:"captureOnError"`
	RecordVideo    bool   `yaml:"recordVideo"`
	ResultPath     string `yaml:"resultPath"` // empty means stdout
}

type ProgressConfig struct {
	WebSocketURL string `yaml:"websocketUrl"` // optional live progress sink
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load builds the configuration: defaults, then the YAML file when path is
// non-empty, then environment overrides.
func Load(path string) (*Config, error) {
	config := &Config{
		Browser: BrowserConfig{
			Kind:     "chrome",
			Headless: true,
		},
		Replay: ReplayConfig{
			Mode:                 "realistic",
			MaxDelayMs:           5000,
			ElementTimeoutSec:    10,
			RetryCeiling:         2,
			BackoffBaseMs:        500,
			NavigationTimeoutSec: 30,
			ModalSettleMs:        300,
		},
		Output: OutputConfig{
			ScreenshotDir:  "screenshots",
			CaptureOnError: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	config.Browser.Kind = getEnv("REPLAY_BROWSER", config.Browser.Kind)
	config.Browser.Headless = getEnvAsBool("REPLAY_HEADLESS", config.Browser.Headless)
	config.Browser.ExecPath = getEnv("REPLAY_BROWSER_PATH", config.Browser.ExecPath)
	config.Browser.Device = getEnv("REPLAY_DEVICE", config.Browser.Device)
	config.Replay.Mode = getEnv("REPLAY_MODE", config.Replay.Mode)
	config.Replay.Speed = getEnvAsFloat("REPLAY_SPEED", config.Replay.Speed)
	config.Replay.MaxDelayMs = getEnvAsInt("REPLAY_MAX_DELAY_MS", config.Replay.MaxDelayMs)
	config.Replay.ElementTimeoutSec = getEnvAsInt("REPLAY_ELEMENT_TIMEOUT", config.Replay.ElementTimeoutSec)
	config.Replay.RetryCeiling = getEnvAsInt("REPLAY_RETRY_CEILING", config.Replay.RetryCeiling)
	config.Replay.BackoffBaseMs = getEnvAsInt("REPLAY_BACKOFF_BASE_MS", config.Replay.BackoffBaseMs)
	config.Replay.NavigationTimeoutSec = getEnvAsInt("REPLAY_NAV_TIMEOUT", config.Replay.NavigationTimeoutSec)
	config.Replay.ModalSettleMs = getEnvAsInt("REPLAY_MODAL_SETTLE_MS", config.Replay.ModalSettleMs)
	config.Output.ScreenshotDir = getEnv("REPLAY_SCREENSHOT_DIR", config.Output.ScreenshotDir)
	config.Output.CaptureOnError = getEnvAsBool("REPLAY_CAPTURE_ON_ERROR", config.Output.CaptureOnError)
	config.Output.RecordVideo = getEnvAsBool("REPLAY_RECORD_VIDEO", config.Output.RecordVideo)
	config.Progress.WebSocketURL = getEnv("REPLAY_PROGRESS_WS", config.Progress.WebSocketURL)
	config.Log.Level = getEnv("REPLAY_LOG_LEVEL", config.Log.Level)
	config.Log.Development = getEnvAsBool("REPLAY_LOG_DEV", config.Log.Development)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Replay.Mode {
	case "instant", "fast", "realistic":
	default:
		return fmt.Errorf("invalid replay mode %q", c.Replay.Mode)
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("replay speed must be >= 0, got %g", c.Replay.Speed)
	}
	if c.Replay.RetryCeiling < 0 {
		return fmt.Errorf("retry ceiling must be >= 0, got %d", c.Replay.RetryCeiling)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
