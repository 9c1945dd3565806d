// Package leadscout defines core types shared across subsystems.
package leadscout

import (
	"time"
)

// Platform identifies a social platform a worker or target is bound to.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
)

// ValidPlatform reports whether p is one of the supported platforms.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformInstagram, PlatformTwitter:
		return true
	default:
		return false
	}
}

// WorkerStatus represents the lifecycle state of a scraping worker.
type WorkerStatus string

// Worker status values persisted in the registry.
const (
	WorkerIdle        WorkerStatus = "idle"
	WorkerBusy        WorkerStatus = "busy"
	WorkerBanned      WorkerStatus = "banned"
	WorkerQuarantined WorkerStatus = "quarantined"
)

// Worker is one scraping identity bound to a single platform. Status moves
// idle->busy only through reservation and busy->idle/quarantined only
// through executor resolution (or the dispatcher's compensating release).
type Worker struct {
	ID              string       `json:"id"`
	Platform        Platform     `json:"platform"`
	Status          WorkerStatus `json:"status"`
	RequestsToday   int          `json:"requests_today"`
	LastUsedAt      *time.Time   `json:"last_used_at,omitempty"`
	QuarantineUntil *time.Time   `json:"quarantine_until,omitempty"`
	BanReason       string       `json:"ban_reason,omitempty"`
	CredentialsRef  string       `json:"credentials_ref"`
}

// Eligible reports whether the worker may be reserved at the given instant.
// A quarantine window that has not elapsed disqualifies the worker even when
// the status field says idle.
func (w Worker) Eligible(now time.Time) bool {
	if w.Status != WorkerIdle {
		return false
	}
	if w.QuarantineUntil != nil && w.QuarantineUntil.After(now) {
		return false
	}
	return true
}

// TargetStatus represents whether a target participates in scheduling.
type TargetStatus string

// Target status values.
const (
	TargetActive TargetStatus = "active"
	TargetPaused TargetStatus = "paused"
)

// TargetType describes what kind of term a target monitors.
type TargetType string

// Target types.
const (
	TargetKeyword TargetType = "keyword"
	TargetHashtag TargetType = "hashtag"
	TargetAccount TargetType = "account"
)

// ValidTargetType reports whether t is one of the supported target types.
func ValidTargetType(t TargetType) bool {
	switch t {
	case TargetKeyword, TargetHashtag, TargetAccount:
		return true
	default:
		return false
	}
}

// Target is a standing request to monitor a platform for a term.
// NextScrapeAt drives scheduling eligibility and only ever moves forward.
type Target struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	Platform      Platform     `json:"platform"`
	Type          TargetType   `json:"type"`
	Term          string       `json:"term"`
	Status        TargetStatus `json:"status"`
	NextScrapeAt  time.Time    `json:"next_scrape_at"`
	LastScrapedAt *time.Time   `json:"last_scraped_at,omitempty"`
	LeadsFound    int          `json:"leads_found"`
}

// Due reports whether the target is eligible for a new scrape cycle.
func (t Target) Due(now time.Time) bool {
	return t.Status == TargetActive && !t.NextScrapeAt.After(now)
}

// ScrapeJob is the ephemeral message dispatched per reservation. It lives only
// in the queue; redelivery and dead-lettering are queue-level concerns.
type ScrapeJob struct {
	TargetID    string     `json:"target_id"`
	WorkerID    string     `json:"worker_id"`
	Platform    Platform   `json:"platform"`
	Type        TargetType `json:"type"`
	Term        string     `json:"term"`
	ScheduledAt time.Time  `json:"scheduled_at"`
}

// RawPost is scrape output, keyed by (platform, post_id) to keep replayed
// deliveries from double-inserting. Processed is consumed by the downstream
// analysis pipeline; this subsystem only writes it as false.
type RawPost struct {
	Platform     Platform  `json:"platform"`
	PostID       string    `json:"post_id"`
	TargetID     string    `json:"target_id"`
	UserID       string    `json:"user_id"`
	Text         string    `json:"text"`
	Author       string    `json:"author"`
	AuthorHandle string    `json:"author_handle"`
	PostedAt     time.Time `json:"posted_at"`
	URL          string    `json:"url"`
	Processed    bool      `json:"processed"`
	FetchedAt    time.Time `json:"fetched_at"`
	BlobURI      string    `json:"blob_uri,omitempty"`
}

// ScrapedPost is a single post as returned by a platform scraper, before it
// is keyed and persisted as a RawPost.
type ScrapedPost struct {
	PostID       string    `json:"post_id"`
	Text         string    `json:"text"`
	Author       string    `json:"author"`
	AuthorHandle string    `json:"author_handle"`
	PostedAt     time.Time `json:"posted_at"`
	URL          string    `json:"url"`
}

// Credentials is the decrypted session material handed to a scraper. The
// registry only ever stores the opaque CredentialsRef; plaintext exists in
// memory for the duration of one scrape.
type Credentials struct {
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent,omitempty"`
}
