// Package appconf holds the service configuration and its sources.
package appconf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment converts an environment name to an Environment,
// defaulting to Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// Data source names accepted by Config.DataSource.
const (
	SourceSTB      = "stb"
	SourceOverpass = "overpass"
	SourceGTFS     = "gtfs"
)

type Config struct {
	Port          int
	Env           Environment
	ApiKeys       []string
	ExemptApiKeys []string // valid keys that bypass rate limiting
	Verbose       bool
	RateLimit     int // requests per second per API key, 0 disables
	LogFormat     string
	LogLevel      string
	CORSOrigins   []string
	StaticDir     string // serves a browser map client when set

	DataSource      string
	STBBaseURL      string
	STBRateLimit    float64 // outbound requests per second
	LinesCacheTTL   time.Duration
	OverpassURL     string
	OverpassArea    string
	OverpassTimeout time.Duration
	GTFSURL         string
	RefreshInterval time.Duration // 0 disables periodic catalog refresh

	VisibilityThreshold float64
	MinSpan             float64
	MaxSpan             float64
	MaxStations         int
	DebounceWindow      time.Duration
	SessionIdleTimeout  time.Duration
}

// Defaults returns the configuration used when no source sets a value.
func Defaults() Config {
	return Config{
		Port:          4000,
		Env:           Development,
		ApiKeys:       []string{},
		ExemptApiKeys: []string{},
		RateLimit:     100,
		LogFormat:     "json",
		LogLevel:      "info",
		CORSOrigins:   []string{"*"},

		DataSource:      SourceSTB,
		STBBaseURL:      "https://info.stbsa.ro/rp/api",
		STBRateLimit:    5,
		LinesCacheTTL:   10 * time.Minute,
		OverpassURL:     "https://overpass-api.de/api/interpreter",
		OverpassArea:    "București",
		OverpassTimeout: 60 * time.Second,

		VisibilityThreshold: 0.1,
		MinSpan:             0.002,
		MaxSpan:             2.0,
		MaxStations:         150,
		DebounceWindow:      250 * time.Millisecond,
		SessionIdleTimeout:  10 * time.Minute,
	}
}

func validSpan(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate-limit must not be negative"))
	}

	switch c.DataSource {
	case SourceSTB:
		if c.STBBaseURL == "" {
			errs = append(errs, errors.New("stb-base-url is required for the stb data source"))
		}
	case SourceOverpass:
		if c.OverpassURL == "" || c.OverpassArea == "" {
			errs = append(errs, errors.New("overpass-url and overpass-area are required for the overpass data source"))
		}
	case SourceGTFS:
		if c.GTFSURL == "" {
			errs = append(errs, errors.New("gtfs-url is required for the gtfs data source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown data source %q (want %s, %s or %s)", c.DataSource, SourceSTB, SourceOverpass, SourceGTFS))
	}

	if !validSpan(c.MinSpan) || !validSpan(c.MaxSpan) || !validSpan(c.VisibilityThreshold) {
		errs = append(errs, errors.New("min-span, max-span and visibility-threshold must be positive numbers"))
	} else if c.MinSpan >= c.VisibilityThreshold || c.VisibilityThreshold > c.MaxSpan {
		errs = append(errs, fmt.Errorf("spans must satisfy min-span < visibility-threshold <= max-span (got %g, %g, %g)",
			c.MinSpan, c.VisibilityThreshold, c.MaxSpan))
	}

	if c.MaxStations < 0 {
		errs = append(errs, errors.New("max-stations must not be negative"))
	}
	if c.DebounceWindow < 0 {
		errs = append(errs, errors.New("debounce-window must not be negative"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("session-idle-timeout must be positive"))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, errors.New("refresh-interval must not be negative"))
	}
	if c.STBRateLimit < 0 {
		errs = append(errs, errors.New("stb-rate-limit must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseList splits a comma separated list, trimming blanks.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
