package appconf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// JSONConfig mirrors Config as it appears in a config file. Unset fields keep
// the value from lower priority sources.
type JSONConfig struct {
	Port          *int     `json:"port"`
	Env           *string  `json:"env"`
	ApiKeys       []string `json:"api-keys"`
	ExemptApiKeys []string `json:"exempt-api-keys"`
	Verbose       *bool    `json:"verbose"`
	RateLimit     *int     `json:"rate-limit"`
	LogFormat     *string  `json:"log-format"`
	LogLevel      *string  `json:"log-level"`
	CORSOrigins   []string `json:"cors-origins"`
	StaticDir     *string  `json:"static-dir"`

	DataSource      *string  `json:"data-source"`
	STBBaseURL      *string  `json:"stb-base-url"`
	STBRateLimit    *float64 `json:"stb-rate-limit"`
	LinesCacheTTL   *string  `json:"lines-cache-ttl"`
	OverpassURL     *string  `json:"overpass-url"`
	OverpassArea    *string  `json:"overpass-area"`
	OverpassTimeout *string  `json:"overpass-timeout"`
	GTFSURL         *string  `json:"gtfs-url"`
	RefreshInterval *string  `json:"refresh-interval"`

	VisibilityThreshold *float64 `json:"visibility-threshold"`
	MinSpan             *float64 `json:"min-span"`
	MaxSpan             *float64 `json:"max-span"`
	MaxStations         *int     `json:"max-stations"`
	DebounceWindow      *string  `json:"debounce-window"`
	SessionIdleTimeout  *string  `json:"session-idle-timeout"`
}

// LoadFromFile reads and validates a JSON config file.
func LoadFromFile(path string) (*JSONConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg JSONConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}

	if _, err := cfg.Apply(Defaults()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ToAppConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ToAppConfig applies the file over the defaults. Bad durations are ignored;
// LoadFromFile has already rejected them.
func (j *JSONConfig) ToAppConfig() Config {
	cfg, _ := j.Apply(Defaults())
	return cfg
}

// Apply overlays the fields set in the file onto base.
func (j *JSONConfig) Apply(base Config) (Config, error) {
	cfg := base

	setInt(&cfg.Port, j.Port)
	if j.Env != nil {
		cfg.Env = EnvFlagToEnvironment(*j.Env)
	}
	if j.ApiKeys != nil {
		cfg.ApiKeys = j.ApiKeys
	}
	if j.Verbose != nil {
		cfg.Verbose = *j.Verbose
	}
	setInt(&cfg.RateLimit, j.RateLimit)
	if j.ExemptApiKeys != nil {
		cfg.ExemptApiKeys = j.ExemptApiKeys
	}
	setString(&cfg.LogFormat, j.LogFormat)
	setString(&cfg.LogLevel, j.LogLevel)
	if j.CORSOrigins != nil {
		cfg.CORSOrigins = j.CORSOrigins
	}
	setString(&cfg.StaticDir, j.StaticDir)

	setString(&cfg.DataSource, j.DataSource)
	setString(&cfg.STBBaseURL, j.STBBaseURL)
	setFloat(&cfg.STBRateLimit, j.STBRateLimit)
	setString(&cfg.OverpassURL, j.OverpassURL)
	setString(&cfg.OverpassArea, j.OverpassArea)
	setString(&cfg.GTFSURL, j.GTFSURL)

	setFloat(&cfg.VisibilityThreshold, j.VisibilityThreshold)
	setFloat(&cfg.MinSpan, j.MinSpan)
	setFloat(&cfg.MaxSpan, j.MaxSpan)
	setInt(&cfg.MaxStations, j.MaxStations)

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"lines-cache-ttl", j.LinesCacheTTL, &cfg.LinesCacheTTL},
		{"overpass-timeout", j.OverpassTimeout, &cfg.OverpassTimeout},
		{"refresh-interval", j.RefreshInterval, &cfg.RefreshInterval},
		{"debounce-window", j.DebounceWindow, &cfg.DebounceWindow},
		{"session-idle-timeout", j.SessionIdleTimeout, &cfg.SessionIdleTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return base, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
