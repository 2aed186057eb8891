package app

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is accepted as an alternative to the key query parameter.
const APIKeyHeader = "X-Api-Key"

// RequestAPIKey returns the key of a request, query parameter first.
func RequestAPIKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return key
	}
	return r.Header.Get(APIKeyHeader)
}

// APIKeysEnabled reports whether requests must carry a key.
func (app *Application) APIKeysEnabled() bool {
	return len(app.Config.ApiKeys) > 0
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	if !app.APIKeysEnabled() {
		return false
	}
	return app.IsInvalidAPIKey(RequestAPIKey(r))
}

func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.ApiKeys {
		// Constant-time comparison against timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}

	return true
}
