// Package pipeline holds the job payloads exchanged between pipeline stages.
// Payloads are the wire contract between stages: fields may be added but never
// renamed or removed, and decoders ignore unknown fields.
package pipeline

import (
	"errors"
	"fmt"
)

var ErrUnknownCollectorType = errors.New("unknown collector type")

// Platform identifies the upstream service a source lives on.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformReddit   Platform = "reddit"
	PlatformYouTube  Platform = "youtube"
	PlatformMastodon Platform = "mastodon"
	PlatformTelegram Platform = "telegram"
	PlatformX        Platform = "x"
)

// CollectorType selects the collector family (and queue) that fetches a source.
// The set is closed; every switch over it must handle all three values.
type CollectorType string

const (
	CollectorAPI     CollectorType = "api"
	CollectorRSS     CollectorType = "rss"
	CollectorScraper CollectorType = "scraper"
)

// CollectorTypes lists every known collector type.
var CollectorTypes = []CollectorType{CollectorAPI, CollectorRSS, CollectorScraper}

func ParseCollectorType(s string) (CollectorType, error) {
	switch CollectorType(s) {
	case CollectorAPI, CollectorRSS, CollectorScraper:
		return CollectorType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCollectorType, s)
	}
}

// ScheduledBy records what caused an orchestration.
type ScheduledBy string

const (
	ScheduledByCron    ScheduledBy = "cron"
	ScheduledByUser    ScheduledBy = "user"
	ScheduledByWebhook ScheduledBy = "webhook"
)
