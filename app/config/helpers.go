package config

import (
	"time"
)

func (c *Config) SaveSkipped() bool {
	return c.Raindrop.SaveSkipped == nil || *c.Raindrop.SaveSkipped
}

func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != "" && c.LLM.APIKey != ""
}

// ThreeWay reports whether articles may land in the maybe collection.
func (c *Config) ThreeWay() bool {
	return c.Filters.Policy == PolicyThreeWay
}

func (c *Config) FetchTimeout() time.Duration {
	if c.Processing.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.Processing.Timeout) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.LLM.Timeout) * time.Second
}
