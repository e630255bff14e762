package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type runCommand struct{}

type serveCommand struct {
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	Interval     int    `long:"interval" env:"SWEEP_INTERVAL" default:"3600" description:"Seconds between sweeps"`
}

type migrateStateCommand struct {
	To string `long:"to" required:"true" choice:"file" choice:"sqlite" choice:"redis" description:"Backend to copy feed states into"`
}

type rawCfg struct {
	ConfigPath string `short:"c" long:"config" env:"CONFIG_PATH" default:"config.yaml" description:"Pipeline configuration file"`

	// State storage
	StateBackend  string `long:"state-backend" env:"STATE_BACKEND" default:"file" choice:"file" choice:"sqlite" choice:"redis" description:"Feed state backend"`
	StateFile     string `long:"state-file" env:"STATE_FILE" default:"state.json" description:"State file for the file backend"`
	StateDB       string `long:"state-db" env:"STATE_DB" default:"state.db" description:"SQLite database for the sqlite backend"`
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the redis backend"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	RedisPrefix   string `long:"redis-prefix" env:"REDIS_PREFIX" default:"rss-bouncer:" description:"Redis key prefix"`

	// Secrets
	RaindropToken string `long:"raindrop-token" env:"RAINDROP_TOKEN" description:"Raindrop.io API token"`
	OpenAIKey     string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	GeminiKey     string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Run          runCommand          `command:"run" description:"Run one sweep over all feeds and exit"`
	Serve        serveCommand        `command:"serve" description:"Sweep periodically and serve the status API"`
	MigrateState migrateStateCommand `command:"migrate-state" description:"Copy feed states from the configured backend into another"`
}

// Load parses flags and environment. It returns nil, nil when help was
// printed. Without a command, run is assumed.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	command := CommandRun
	if parser.Active != nil {
		command = parser.Active.Name
	}

	cfg := &Cfg{
		Command:       command,
		ConfigPath:    raw.ConfigPath,
		StateBackend:  raw.StateBackend,
		StateFile:     raw.StateFile,
		StateDB:       raw.StateDB,
		RedisAddr:     raw.RedisAddr,
		RedisPassword: raw.RedisPassword,
		RedisDB:       raw.RedisDB,
		RedisPrefix:   raw.RedisPrefix,
		MigrateTo:     raw.MigrateState.To,
		RaindropToken: raw.RaindropToken,
		OpenAIKey:     raw.OpenAIKey,
		GeminiKey:     raw.GeminiKey,
		Port:          raw.Serve.Port,
		APIAccessKey:  raw.Serve.APIAccessKey,
		Interval:      time.Duration(raw.Serve.Interval) * time.Second,
		UserAgent:     cmp.Or(raw.UserAgent, DefaultUserAgent),
		Timezone:      raw.Timezone,
		LogLevel:      raw.LogLevel,
		Debug:         raw.Debug,
		Version:       GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func validate(cfg *Cfg) error {
	switch cfg.Command {
	case CommandServe:
		if cfg.Interval <= 0 {
			return fmt.Errorf("sweep interval must be positive")
		}
	case CommandMigrateState:
		if cfg.MigrateTo == cfg.StateBackend {
			return fmt.Errorf("migration target must differ from the source backend %s", cfg.StateBackend)
		}
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
