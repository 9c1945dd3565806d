package leadscout

import "strings"

// banMarkers are the substrings treated as ban or rate-limit signals when
// they appear in a scraper error. Matching is case-insensitive.
var banMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"captcha",
}

// IsBanSignal reports whether the error text indicates a platform ban or
// rate limit rather than a transient failure.
func IsBanSignal(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range banMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
