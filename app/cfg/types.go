package cfg

import (
	"time"

	"github.com/lysyi3m/rss-bouncer/app/config"
	"github.com/lysyi3m/rss-bouncer/app/state"
)

const (
	CommandRun          = "run"
	CommandServe        = "serve"
	CommandMigrateState = "migrate-state"
)

type Cfg struct {
	Command    string
	ConfigPath string

	// State storage
	StateBackend  string
	StateFile     string
	StateDB       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// migrate-state target backend
	MigrateTo string

	// Secrets
	RaindropToken string
	OpenAIKey     string
	GeminiKey     string

	// Serve mode
	Port         string
	APIAccessKey string
	Interval     time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	LogLevel  string
	Debug     bool
	Version   string
}

// StateOptions returns the location settings for the given backend.
func (c *Cfg) StateOptions(backend string) state.Options {
	return state.Options{
		Backend:       backend,
		FilePath:      c.StateFile,
		DBPath:        c.StateDB,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisPrefix:   c.RedisPrefix,
	}
}

func (c *Cfg) Secrets() config.Secrets {
	return config.Secrets{
		RaindropToken: c.RaindropToken,
		OpenAIKey:     c.OpenAIKey,
		GeminiKey:     c.GeminiKey,
	}
}
