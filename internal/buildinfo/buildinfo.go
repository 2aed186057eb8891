// Package buildinfo carries version metadata injected at link time:
//
//	go build -ldflags "-X github.com/pietrosul/MyBusApp/internal/buildinfo.Version=v1.2.0 ..."
package buildinfo

var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// ShortHash returns the abbreviated commit hash, or "unknown".
func ShortHash() string {
	if len(CommitHash) >= 7 {
		return CommitHash[:7]
	}
	return "unknown"
}
