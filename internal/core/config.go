package core

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the session
// controller and its collaborators.
type Config struct {
	// Hostname or IP address on which the server role will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Transport struct {
		// Identifier reported in the server status line.
		Name string `mapstructure:"name"`
		// Port used when listening and when a dialed address doesn't carry one.
		Port int `mapstructure:"port"`
		// How long a client dial may take before it's reported as a disconnect.
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	} `mapstructure:"transport"`

	Platform struct {
		// Whether this environment is able to act as a server (and thus a host).
		CanServe bool `mapstructure:"can_serve"`
	} `mapstructure:"platform"`

	Session struct {
		// Role to start on launch. Options: none, host, client, server
		Autostart string `mapstructure:"autostart"`
		// Address used by autostart for the client and host roles.
		Address string `mapstructure:"address"`
	} `mapstructure:"session"`

	Game struct {
		// Database engine backing the player store. Options: sqlite, postgres
		Engine string `mapstructure:"engine"`
		// Path to the SQLite database file (sqlite engine only).
		Filename string `mapstructure:"filename"`
		// Postgres connection settings (postgres engine only).
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"ssl_mode"`
		// How long a spawned local player stays in the live cache.
		PlayerTTL time.Duration `mapstructure:"player_ttl"`
	} `mapstructure:"game"`

	Debugging struct {
		// Enable the debug HTTP surface (pprof and the session endpoints).
		Enabled bool `mapstructure:"enabled"`
		// Port on which the debug HTTP server listens (localhost only).
		HTTPPort int `mapstructure:"http_port"`
		// Enable database-level query logging.
		DatabaseLoggingEnabled bool `mapstructure:"database_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "NETSESSION"

func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("transport.name", "tcp")
	v.SetDefault("transport.port", 7777)
	v.SetDefault("transport.dial_timeout", 10*time.Second)
	v.SetDefault("platform.can_serve", true)
	v.SetDefault("session.autostart", "none")
	v.SetDefault("session.address", "localhost")
	v.SetDefault("game.engine", "sqlite")
	v.SetDefault("game.filename", "netsession.db")
	v.SetDefault("game.port", 5432)
	v.SetDefault("game.ssl_mode", "disable")
	v.SetDefault("game.player_ttl", time.Hour)
	v.SetDefault("debugging.http_port", 4040)
}

// LoadConfig reads config.yaml from configPath, layering environment overrides
// and defaults on top of it.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, transport.port can be set using: <envVarPrefix>_TRANSPORT_PORT
	for _, k := range v.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config object: %w", err)
	}
	return config, nil
}

// ListenAddress returns the address the server role binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Transport.Port))
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns the data source for the configured game engine.
func (c *Config) DatabaseURL() string {
	if c.Game.Engine == "sqlite" {
		return c.Game.Filename
	}
	return fmt.Sprintf(
		databaseURITemplate,
		c.Game.Host,
		c.Game.Port,
		c.Game.Name,
		c.Game.Username,
		c.Game.Password,
		c.Game.SSLMode,
	)
}
