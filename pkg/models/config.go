package models

// SourceMode selects where copilot events come from.
type SourceMode string

const (
	SourceLive     SourceMode = "live"
	SourceScripted SourceMode = "scripted"
)

// IDStrategy selects the identifier generator.
type IDStrategy string

const (
	IDCounter IDStrategy = "counter"
	IDUUID    IDStrategy = "uuid"
)

// ServiceConfig points at the intelligence service.
type ServiceConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	TopK    int    `yaml:"top_k" mapstructure:"top_k"`
}

// ScenarioConfig locates scenario definitions.
type ScenarioConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Watch bool   `yaml:"watch" mapstructure:"watch"`
}

// PlaybackConfig tunes scripted playback timing.
type PlaybackConfig struct {
	WarmupMs   int `yaml:"warmup_ms" mapstructure:"warmup_ms"`
	MaxDelayMs int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// LogConfig controls operational logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// StoreConfig selects the SQL backend of the draft decision ledger.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// TranscriptConfig selects where finished runs are archived.
type TranscriptConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	RedisURL string `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
}

// Config holds all settings read from .meridian.yaml via Viper.
type Config struct {
	Mode          SourceMode       `yaml:"mode" mapstructure:"mode"`
	IDs           IDStrategy       `yaml:"ids" mapstructure:"ids"`
	Service       ServiceConfig    `yaml:"service" mapstructure:"service"`
	Scenarios     ScenarioConfig   `yaml:"scenarios" mapstructure:"scenarios"`
	GraphBaseFile string           `yaml:"graph_base_file" mapstructure:"graph_base_file"`
	Playback      PlaybackConfig   `yaml:"playback" mapstructure:"playback"`
	Log           LogConfig        `yaml:"log" mapstructure:"log"`
	EventsFile    string           `yaml:"events_file" mapstructure:"events_file"`
	Store         StoreConfig      `yaml:"store" mapstructure:"store"`
	Transcripts   TranscriptConfig `yaml:"transcripts" mapstructure:"transcripts"`
	ServerAddr    string           `yaml:"server_addr" mapstructure:"server_addr"`
	SlackWebhook  string           `yaml:"slack_webhook,omitempty" mapstructure:"slack_webhook"`
}
