package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the client.
type Config struct {
	Service    ServiceConfig
	Connection ConnectionConfig
	Interview  InterviewConfig
	Audio      AudioConfig
	Rules      RulesConfig
}

type ServiceConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type ConnectionConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type InterviewConfig struct {
	QuestionCount   int
	CameraTimeout   time.Duration
	ClassifyMode    string
	NotificationTTL time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ClipFormat      string
}

type RulesConfig struct {
	Path string
}

// Load resolves configuration from environment variables and sensible
// defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	rulesPath := strings.TrimSpace(os.Getenv("SERENADE_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = filepath.Join(home, ".config", "serenade", "answers.rules")
	}

	cfg := Config{
		Service: ServiceConfig{
			BaseURL:        envOrDefault("SERENADE_SERVICE_URL", "http://localhost:8000"),
			RequestTimeout: time.Duration(envOrDefaultInt("SERENADE_REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Connection: ConnectionConfig{
			MaxAttempts: envOrDefaultInt("SERENADE_MAX_RECONNECT_ATTEMPTS", 5),
			BaseDelay:   time.Duration(envOrDefaultInt("SERENADE_RECONNECT_BASE_MS", 1000)) * time.Millisecond,
			MaxDelay:    time.Duration(envOrDefaultInt("SERENADE_RECONNECT_CAP_MS", 10000)) * time.Millisecond,
		},
		Interview: InterviewConfig{
			QuestionCount:   envOrDefaultInt("SERENADE_QUESTION_COUNT", 5),
			CameraTimeout:   time.Duration(envOrDefaultInt("SERENADE_CAMERA_TIMEOUT_MS", 30000)) * time.Millisecond,
			ClassifyMode:    envOrDefault("SERENADE_CLASSIFY_MODE", "lenient"),
			NotificationTTL: time.Duration(envOrDefaultInt("SERENADE_NOTIFICATION_TTL_MS", 6000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SERENADE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("SERENADE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("SERENADE_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("SERENADE_SAMPLE_RATE", 48000),
			Channels:        envOrDefaultInt("SERENADE_CHANNELS", 1),
			ClipFormat:      envOrDefault("SERENADE_CLIP_FORMAT", "webm"),
		},
		Rules: RulesConfig{Path: rulesPath},
	}

	if cfg.Connection.MaxAttempts <= 0 {
		cfg.Connection.MaxAttempts = 5
	}
	if cfg.Connection.BaseDelay <= 0 {
		cfg.Connection.BaseDelay = time.Second
	}
	if cfg.Connection.MaxDelay < cfg.Connection.BaseDelay {
		cfg.Connection.MaxDelay = 10 * time.Second
	}
	if cfg.Interview.QuestionCount <= 0 {
		cfg.Interview.QuestionCount = 5
	}
	if mode := cfg.Interview.ClassifyMode; mode != "lenient" && mode != "strict" {
		cfg.Interview.ClassifyMode = "lenient"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
