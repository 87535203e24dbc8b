// Package ratelimit implements named fixed-window request limiters with a
// cooldown block once a window is exhausted.
package ratelimit

import (
	"fmt"
	"time"
)

// Config describes one named limiter: up to Points requests per Duration
// window. The request that exceeds Points blocks the client for
// BlockDuration, which may be longer than the window itself.
type Config struct {
	Name          string
	Points        int
	Duration      time.Duration
	BlockDuration time.Duration
}

// Limiter names.
const (
	Login   = "login"
	Signup  = "signup"
	Analyze = "analyze"
	General = "general"
	Admin   = "admin"
)

// DefaultConfigs returns the built-in limiter table:
//
//	| limiter | points | window | block |
//	|---------|--------|--------|-------|
//	| login   | 5      | 5m     | 15m   |
//	| signup  | 3      | 1h     | 1h    |
//	| analyze | 10     | 1m     | 5m    |
//	| general | 30     | 1m     | 1m    |
//	| admin   | 5      | 1m     | 5m    |
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		Login:   {Name: Login, Points: 5, Duration: 300 * time.Second, BlockDuration: 900 * time.Second},
		Signup:  {Name: Signup, Points: 3, Duration: 3600 * time.Second, BlockDuration: 3600 * time.Second},
		Analyze: {Name: Analyze, Points: 10, Duration: 60 * time.Second, BlockDuration: 300 * time.Second},
		General: {Name: General, Points: 30, Duration: 60 * time.Second, BlockDuration: 60 * time.Second},
		Admin:   {Name: Admin, Points: 5, Duration: 60 * time.Second, BlockDuration: 300 * time.Second},
	}
}

// Validate checks that the config can be enforced.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("ratelimit: limiter name is required")
	}
	if c.Points <= 0 {
		return fmt.Errorf("ratelimit: %s: points must be positive", c.Name)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("ratelimit: %s: duration must be positive", c.Name)
	}
	if c.BlockDuration < 0 {
		return fmt.Errorf("ratelimit: %s: block duration must not be negative", c.Name)
	}
	return nil
}
