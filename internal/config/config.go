package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultModelName is the Coqui model loaded when none is configured.
const DefaultModelName = "tts_models/en/ljspeech/tacotron2-DDC"

type Config struct {
	Model    ModelConfig  `mapstructure:"model"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type ModelConfig struct {
	Backend       string `mapstructure:"backend"`
	Name          string `mapstructure:"name"`
	ID            string `mapstructure:"id"`
	URL           string `mapstructure:"url"`
	ServerPath    string `mapstructure:"server_path"`
	CLIPath       string `mapstructure:"cli_path"`
	Port          int    `mapstructure:"port"`
	GPU           bool   `mapstructure:"gpu"`
	SpeakerID     string `mapstructure:"speaker_id"`
	LanguageID    string `mapstructure:"language_id"`
	LoadTimeout   int    `mapstructure:"load_timeout"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// ShortID returns the identifier reported by the health route: the explicit
// ID if set, otherwise the last segment of the Coqui model name.
func (m ModelConfig) ShortID() string {
	if id := strings.TrimSpace(m.ID); id != "" {
		return id
	}
	name := strings.TrimRight(strings.TrimSpace(m.Name), "/")
	if name == "" {
		return ""
	}
	return path.Base(name)
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextChars    int    `mapstructure:"max_text_chars"`
	TempDir         string `mapstructure:"temp_dir"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	// RateLimit caps accepted /tts requests per second across all clients.
	// Zero disables the limit.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			Backend:       BackendServer,
			Name:          DefaultModelName,
			ID:            "",
			URL:           "http://127.0.0.1:5002",
			ServerPath:    "tts-server",
			CLIPath:       "tts",
			Port:          5002,
			GPU:           false,
			SpeakerID:     "",
			LanguageID:    "",
			LoadTimeout:   300,
			MaxConcurrent: 1,
		},
		Server: ServerConfig{
			ListenAddr:      ":8000",
			MaxTextChars:    200,
			TempDir:         "",
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			RateLimit:       0,
			RateBurst:       1,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model-backend", defaults.Model.Backend, "Model host backend (server|remote|cli)")
	fs.String("model-name", defaults.Model.Name, "Coqui model name")
	fs.String("model-id", defaults.Model.ID, "Model identifier reported by the health route")
	fs.String("model-url", defaults.Model.URL, "Base URL of a running tts-server (remote backend)")
	fs.String("model-server-path", defaults.Model.ServerPath, "Path to the tts-server executable")
	fs.String("model-cli-path", defaults.Model.CLIPath, "Path to the tts executable")
	fs.Int("model-port", defaults.Model.Port, "Port for the managed tts-server")
	fs.Bool("model-gpu", defaults.Model.GPU, "Run the model on CUDA")
	fs.String("model-speaker-id", defaults.Model.SpeakerID, "Speaker id for multi-speaker models")
	fs.String("model-language-id", defaults.Model.LanguageID, "Language id for multi-lingual models")
	fs.Int("model-load-timeout", defaults.Model.LoadTimeout, "Seconds to wait for the model to load")
	fs.Int("model-max-concurrent", defaults.Model.MaxConcurrent, "Max concurrent synthesis calls")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-chars", defaults.Server.MaxTextChars, "Max characters accepted by /tts")
	fs.String("server-temp-dir", defaults.Server.TempDir, "Directory for per-request audio files")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds (0 disables)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Float64("server-rate-limit", defaults.Server.RateLimit, "Max /tts requests per second (0 disables)")
	fs.Int("server-rate-burst", defaults.Server.RateBurst, "Burst size for --server-rate-limit")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("COQUITTS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("coquitts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("model.backend", c.Model.Backend)
	v.SetDefault("model.name", c.Model.Name)
	v.SetDefault("model.id", c.Model.ID)
	v.SetDefault("model.url", c.Model.URL)
	v.SetDefault("model.server_path", c.Model.ServerPath)
	v.SetDefault("model.cli_path", c.Model.CLIPath)
	v.SetDefault("model.port", c.Model.Port)
	v.SetDefault("model.gpu", c.Model.GPU)
	v.SetDefault("model.speaker_id", c.Model.SpeakerID)
	v.SetDefault("model.language_id", c.Model.LanguageID)
	v.SetDefault("model.load_timeout", c.Model.LoadTimeout)
	v.SetDefault("model.max_concurrent", c.Model.MaxConcurrent)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_chars", c.Server.MaxTextChars)
	v.SetDefault("server.temp_dir", c.Server.TempDir)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", c.Server.RateLimit)
	v.SetDefault("server.rate_burst", c.Server.RateBurst)
	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps config keys to the flag names registered by RegisterFlags.
// Binding keys to flags directly (rather than aliasing them) keeps nested
// config file values visible to Unmarshal.
var flagKeys = []struct{ key, flag string }{
	{"model.backend", "model-backend"},
	{"model.name", "model-name"},
	{"model.id", "model-id"},
	{"model.url", "model-url"},
	{"model.server_path", "model-server-path"},
	{"model.cli_path", "model-cli-path"},
	{"model.port", "model-port"},
	{"model.gpu", "model-gpu"},
	{"model.speaker_id", "model-speaker-id"},
	{"model.language_id", "model-language-id"},
	{"model.load_timeout", "model-load-timeout"},
	{"model.max_concurrent", "model-max-concurrent"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.max_text_chars", "server-max-text-chars"},
	{"server.temp_dir", "server-temp-dir"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"server.rate_limit", "server-rate-limit"},
	{"server.rate_burst", "server-rate-burst"},
	{"log_level", "log-level"},
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}
	}
	return nil
}
