package fetcher

import "net/http"

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.71 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:96.0) Gecko/20100101 Firefox/96.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.45 Safari/537.36",
}

// UserAgents returns the pool of browser user agents used for rotation.
func UserAgents() []string {
	out := make([]string, len(userAgents))
	copy(out, userAgents)
	return out
}

// BrowserHeaders returns a browser-like header set with a user agent picked
// by intn, which must behave like rand.IntN.
func BrowserHeaders(intn func(int) int) http.Header {
	h := make(http.Header, 7)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("User-Agent", userAgents[intn(len(userAgents))])
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Dnt", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}
