package gtfs

import "strings"

// Config holds the GTFS static feed location.
type Config struct {
	GtfsURL               string
	StaticAuthHeaderKey   string
	StaticAuthHeaderValue string
}

// isLocalFile reports whether GtfsURL names a file rather than an HTTP URL.
func (config Config) isLocalFile() bool {
	return !strings.HasPrefix(config.GtfsURL, "http://") && !strings.HasPrefix(config.GtfsURL, "https://")
}
