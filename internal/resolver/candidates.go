package resolver

import "net/http"

// BrowserHeaders is the request header set sent to upstream pages so they
// answer as they would for an ordinary browser. Accept-Encoding is left to
// the transport so compressed bodies are decoded transparently.
func BrowserHeaders(referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("DNT", "1")
	h.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}

// DefaultCandidates returns the built-in NYT Mini chain: the game page with
// its embedded gameData first, then the JSON puzzle service.
func DefaultCandidates() []Candidate {
	jsonHeaders := BrowserHeaders("https://www.nytimes.com/crosswords/game/mini")
	jsonHeaders.Set("Accept", "application/json, text/plain, */*")
	return []Candidate{
		{
			Name:        "nyt-mini-game",
			URLTemplate: "https://www.nytimes.com/crosswords/game/mini/{yyyy}/{m}/{d}",
			Headers:     BrowserHeaders("https://www.nytimes.com/crosswords"),
			Kind:        KindHTML,
			Promote:     true,
		},
		{
			Name:        "nyt-mini-svc",
			URLTemplate: "https://www.nytimes.com/svc/crosswords/v6/puzzle/mini/{date}.json",
			Headers:     jsonHeaders,
			Kind:        KindJSON,
		},
	}
}
