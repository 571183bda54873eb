package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MAHJONG_SERVER_HTTP_ADDRESS.
const EnvPrefix = "MAHJONG"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Room       RoomConfig       `mapstructure:"room"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string   `mapstructure:"http_address"`
	RPCAddress     string   `mapstructure:"rpc_address"`
	MetricsAddress string   `mapstructure:"metrics_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ConnectionConfig struct {
	SendBuffer        int           `mapstructure:"send_buffer"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// RoomConfig controls the idle-room reaper. A zero IdleTimeout disables it.
type RoomConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3000")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.metrics_address", "")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("connection.send_buffer", 64)
	v.SetDefault("connection.read_limit", 64*1024)
	v.SetDefault("connection.pong_wait", 60*time.Second)
	v.SetDefault("connection.write_wait", 10*time.Second)
	v.SetDefault("connection.messages_per_second", 20.0)
	v.SetDefault("connection.burst", 40)

	v.SetDefault("room.idle_timeout", time.Duration(0))
	v.SetDefault("room.reap_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig reads config.yaml from path, a .env file next to it, and
// MAHJONG_* environment overrides. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	// .env only seeds variables that are not already set
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
