package appconf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "MYBUS_"

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv overlays MYBUS_* variables onto base. lookup is usually os.LookupEnv.
func FromEnv(base Config, lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := base
	var errs []error

	get := func(name string) (string, bool) {
		return lookup(EnvPrefix + name)
	}
	intVar := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	floatVar := func(name string, dst *float64) {
		if v, ok := get(name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	stringVar := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	intVar("PORT", &cfg.Port)
	if v, ok := get("ENV"); ok {
		cfg.Env = EnvFlagToEnvironment(v)
	}
	if v, ok := get("API_KEYS"); ok {
		cfg.ApiKeys = ParseList(v)
	}
	if v, ok := get("VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sVERBOSE: %w", EnvPrefix, err))
		} else {
			cfg.Verbose = b
		}
	}
	intVar("RATE_LIMIT", &cfg.RateLimit)
	if v, ok := get("EXEMPT_API_KEYS"); ok {
		cfg.ExemptApiKeys = ParseList(v)
	}
	stringVar("LOG_FORMAT", &cfg.LogFormat)
	stringVar("LOG_LEVEL", &cfg.LogLevel)
	if v, ok := get("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = ParseList(v)
	}
	stringVar("STATIC_DIR", &cfg.StaticDir)

	stringVar("DATA_SOURCE", &cfg.DataSource)
	stringVar("STB_BASE_URL", &cfg.STBBaseURL)
	floatVar("STB_RATE_LIMIT", &cfg.STBRateLimit)
	durationVar("LINES_CACHE_TTL", &cfg.LinesCacheTTL)
	stringVar("OVERPASS_URL", &cfg.OverpassURL)
	stringVar("OVERPASS_AREA", &cfg.OverpassArea)
	durationVar("OVERPASS_TIMEOUT", &cfg.OverpassTimeout)
	stringVar("GTFS_URL", &cfg.GTFSURL)
	durationVar("REFRESH_INTERVAL", &cfg.RefreshInterval)

	floatVar("VISIBILITY_THRESHOLD", &cfg.VisibilityThreshold)
	floatVar("MIN_SPAN", &cfg.MinSpan)
	floatVar("MAX_SPAN", &cfg.MaxSpan)
	intVar("MAX_STATIONS", &cfg.MaxStations)
	durationVar("DEBOUNCE_WINDOW", &cfg.DebounceWindow)
	durationVar("SESSION_IDLE_TIMEOUT", &cfg.SessionIdleTimeout)

	if len(errs) > 0 {
		return base, errors.Join(errs...)
	}
	return cfg, nil
}
