package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// AssistantConfig drives the voice session engine.
type AssistantConfig struct {
	Endpoint                string `yaml:"endpoint"`
	Model                   string `yaml:"model"`
	APIKeyEnv               string `yaml:"api_key_env"`
	APIKeyFile              string `yaml:"api_key_file"`
	DefaultLanguage         string `yaml:"default_language"`
	PlaybackRate            int    `yaml:"playback_rate"`
	PlaybackChannels        int    `yaml:"playback_channels"`
	ConnectTimeoutMS        int    `yaml:"connect_timeout_ms"`
	VolumeIntervalMS        int    `yaml:"volume_interval_ms"`
	VisualContextMaxImages  int    `yaml:"visual_context_max_images"`
	VisualContextMaxEdge    int    `yaml:"visual_context_max_edge"`
	ShutdownConfirmWindowMS int    `yaml:"shutdown_confirm_window_ms"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Assistant   AssistantConfig  `yaml:"assistant"`
}

func Default() Config {
	return Config{
		RuntimeName: "canvas-voice",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/canvas-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Assistant: AssistantConfig{
			Endpoint:                "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			Model:                   "models/gemini-2.5-flash-native-audio-preview",
			APIKeyEnv:               "CANVAS_API_KEY",
			DefaultLanguage:         "en",
			PlaybackRate:            24000,
			PlaybackChannels:        1,
			ConnectTimeoutMS:        15000,
			VolumeIntervalMS:        100,
			VisualContextMaxImages:  3,
			VisualContextMaxEdge:    512,
			ShutdownConfirmWindowMS: 15000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// APIKey resolves the assistant credential: env var first, key file second.
// An empty result is a fail-fast condition at session start, not load time.
func (c AssistantConfig) APIKey() string {
	if c.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(c.APIKeyEnv)); v != "" {
			return v
		}
	}
	if c.APIKeyFile != "" {
		if data, err := os.ReadFile(c.APIKeyFile); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CANVAS_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CANVAS_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CANVAS_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CANVAS_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CANVAS_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CANVAS_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CANVAS_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CANVAS_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "CANVAS_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CANVAS_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CANVAS_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CANVAS_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CANVAS_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CANVAS_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CANVAS_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CANVAS_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "CANVAS_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "CANVAS_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "CANVAS_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "CANVAS_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "CANVAS_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Assistant.Endpoint, "CANVAS_ASSISTANT_ENDPOINT")
	overrideString(&cfg.Assistant.Model, "CANVAS_ASSISTANT_MODEL")
	overrideString(&cfg.Assistant.APIKeyEnv, "CANVAS_ASSISTANT_API_KEY_ENV")
	overrideString(&cfg.Assistant.APIKeyFile, "CANVAS_ASSISTANT_API_KEY_FILE")
	overrideString(&cfg.Assistant.DefaultLanguage, "CANVAS_ASSISTANT_DEFAULT_LANGUAGE")
	overrideInt(&cfg.Assistant.PlaybackRate, "CANVAS_ASSISTANT_PLAYBACK_RATE")
	overrideInt(&cfg.Assistant.PlaybackChannels, "CANVAS_ASSISTANT_PLAYBACK_CHANNELS")
	overrideInt(&cfg.Assistant.ConnectTimeoutMS, "CANVAS_ASSISTANT_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Assistant.VolumeIntervalMS, "CANVAS_ASSISTANT_VOLUME_INTERVAL_MS")
	overrideInt(&cfg.Assistant.VisualContextMaxImages, "CANVAS_ASSISTANT_VISUAL_CONTEXT_MAX_IMAGES")
	overrideInt(&cfg.Assistant.VisualContextMaxEdge, "CANVAS_ASSISTANT_VISUAL_CONTEXT_MAX_EDGE")
	overrideInt(&cfg.Assistant.ShutdownConfirmWindowMS, "CANVAS_ASSISTANT_SHUTDOWN_CONFIRM_WINDOW_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Assistant.Endpoint == "" {
		return errors.New("assistant.endpoint must not be empty")
	}
	if cfg.Assistant.Model == "" {
		return errors.New("assistant.model must not be empty")
	}
	if cfg.Assistant.APIKeyEnv == "" && cfg.Assistant.APIKeyFile == "" {
		return errors.New("assistant.api_key_env or assistant.api_key_file must be set")
	}
	if cfg.Assistant.PlaybackRate <= 0 {
		return errors.New("assistant.playback_rate must be positive")
	}
	if cfg.Assistant.PlaybackChannels <= 0 {
		return errors.New("assistant.playback_channels must be positive")
	}
	switch cfg.Assistant.DefaultLanguage {
	case "en", "hu":
		// ok
	default:
		return errors.New("assistant.default_language must be one of en|hu")
	}
	if cfg.Assistant.VisualContextMaxImages < 0 {
		return errors.New("assistant.visual_context_max_images must be >= 0")
	}
	if cfg.Assistant.VisualContextMaxEdge < 0 {
		return errors.New("assistant.visual_context_max_edge must be >= 0")
	}
	return nil
}
