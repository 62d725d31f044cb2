package google

import (
	"net/http"

	"golang.org/x/oauth2"
)

// ForceHTTP1 pins an OAuth2-authenticated client to HTTP/1.1. The Google
// frontends intermittently reset HTTP/2 streams on long-running exports
// and downloads.
func ForceHTTP1(client *http.Client) {
	if tr, ok := client.Transport.(*oauth2.Transport); ok {
		tr.Base = &http.Transport{ForceAttemptHTTP2: false}
	}
}
