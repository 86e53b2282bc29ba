// Package scrape implements the two-phase countries/cities crawl: the
// bounded-retry element locator, the country directory crawler, and the
// per-country city crawler with its two page-layout variants.
package scrape

import (
	"context"
	"time"
)

// Entry is one scraped name/url pair. URL is nil when the anchor carried no
// href; the entry is still recorded by name.
type Entry struct {
	Name string  `json:"name"`
	URL  *string `json:"url"`
}

// Layout identifies which of the two country-page shapes was detected.
type Layout int

// Country pages either list every city in one container or split cities
// across per-letter index pages behind an alphabet navigation table.
const (
	LayoutFlat Layout = iota
	LayoutIndex
)

// String implements fmt.Stringer for log fields.
func (l Layout) String() string {
	switch l {
	case LayoutFlat:
		return "flat"
	case LayoutIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Page is the browser surface the crawlers drive. *browser.Session satisfies
// it; tests substitute fixture-backed fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
}

// Structural selectors for the fixed site layout.
const (
	selCountrySections = "div.mapctrytab-cont"
	selLetterNav       = "div.letter_nav"
	selResults         = "section.b-wrapper"
)
