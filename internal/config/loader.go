package config

import (
	"fmt"

	"github.com/graphium/importsvc/internal/db"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Database  db.Config
	Server    ServerConfig
	Reprocess ReprocessConfig
	Stream    StreamConfig
	Log       LogConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// ReprocessConfig tunes the bulk reprocess dispatcher.
type ReprocessConfig struct {
	MaxConcurrent int
}

// StreamConfig points at the downstream flow-execution engine. An empty URL
// selects the logging stub used in development.
type StreamConfig struct {
	URL string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads config.yaml from the given path with IMPORT_-prefixed
// environment overrides (e.g. IMPORT_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server:   ServerConfig{Addr: ":8080"},
		Reprocess: ReprocessConfig{
			MaxConcurrent: 50,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("IMPORT")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("reprocess.max_concurrent")
	v.BindEnv("stream.url")
	v.BindEnv("log.level")
	v.BindEnv("log.format")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("reprocess.max_concurrent") {
		cfg.Reprocess.MaxConcurrent = v.GetInt("reprocess.max_concurrent")
	}
	if v.IsSet("stream.url") {
		cfg.Stream.URL = v.GetString("stream.url")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}

	return cfg, nil
}
