// Package scraper holds scraper implementations for local development. The
// production platform engines live out of process; the executor only
// depends on the one-method Scraper interface.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// Static returns a canned post per scrape. It stands in for the platform
// engines when running the pipeline locally end to end.
type Static struct{}

// Scrape returns one placeholder post for the requested term.
func (Static) Scrape(_ context.Context, platform leadscout.Platform, _ leadscout.TargetType, term string, _ leadscout.Credentials) ([]leadscout.ScrapedPost, error) {
	if !leadscout.ValidPlatform(platform) {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
	return []leadscout.ScrapedPost{
		{
			PostID:       fmt.Sprintf("%s-%d", platform, time.Now().UnixNano()),
			Text:         fmt.Sprintf("Looking for %s, any recommendations?", term),
			AuthorHandle: "devuser",
			PostedAt:     time.Now().UTC(),
		},
	}, nil
}

// Failing always errors with the configured message. Useful for exercising
// ban classification paths locally.
type Failing struct {
	Message string
}

// Scrape for Failing returns the configured error.
func (f Failing) Scrape(_ context.Context, _ leadscout.Platform, _ leadscout.TargetType, _ string, _ leadscout.Credentials) ([]leadscout.ScrapedPost, error) {
	return nil, fmt.Errorf("%s", f.Message)
}
