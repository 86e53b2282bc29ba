package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Delays bundles the jittered pacing windows used across the crawl.
type Delays struct {
	SettleMin  time.Duration
	SettleMax  time.Duration
	SectionMin time.Duration
	SectionMax time.Duration
	LetterMin  time.Duration
	LetterMax  time.Duration
}

// Config controls the scraper's structural lookup bounds.
type Config struct {
	BaseURL        string
	LocatorTimeout time.Duration
	ProbeTimeout   time.Duration
	Delays         Delays
}

// Scraper drives both crawl phases against a live browser page.
type Scraper struct {
	base    *url.URL
	cfg     Config
	locator Locator
	logger  *zap.Logger
}

// New builds a Scraper. The base URL anchors relative href resolution.
func New(cfg Config, locator Locator, logger *zap.Logger) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.LocatorTimeout <= 0 {
		cfg.LocatorTimeout = 3 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &Scraper{base: base, cfg: cfg, locator: locator, logger: logger}, nil
}

// Countries runs phase 1: enumerate country name/url pairs from the
// directory page. On a mid-scrape error the entries collected so far are
// returned alongside the error; an empty clean result means "no data", and
// only a non-nil error engages the orchestrator's restart policy.
func (s *Scraper) Countries(ctx context.Context, page Page) ([]Entry, error) {
	target := s.base.JoinPath("countries").String()
	s.logger.Info("scraping countries", zap.String("url", target))

	var entries []Entry
	if err := page.Navigate(ctx, target); err != nil {
		return entries, fmt.Errorf("navigate country directory: %w", err)
	}
	Pause(ctx, s.cfg.Delays.SettleMin, s.cfg.Delays.SettleMax)

	found, err := s.locator.WaitFor(ctx, page, selCountrySections, 5, s.cfg.LocatorTimeout)
	if err != nil {
		return entries, fmt.Errorf("locate country sections: %w", err)
	}
	if !found {
		s.logger.Error("country section container not found")
		return entries, nil
	}
	Pause(ctx, s.cfg.Delays.SectionMin, s.cfg.Delays.SectionMax)

	doc, err := s.document(ctx, page)
	if err != nil {
		return entries, err
	}

	sections := parseCountrySections(doc, s.base)
	for i, section := range sections {
		entries = append(entries, section...)
		s.logger.Debug("country section parsed",
			zap.Int("section", i+1),
			zap.Int("countries", len(section)),
		)
		if i < len(sections)-1 {
			Pause(ctx, s.cfg.Delays.SectionMin, s.cfg.Delays.SectionMax)
		}
	}

	s.logger.Info("country scrape complete", zap.Int("countries", len(entries)))
	return entries, nil
}

// Cities runs phase 2 for one country: detect the page layout once, then
// dispatch to the matching extraction routine. Duplicates across letter
// pages are allowed here; they resolve at upsert time.
func (s *Scraper) Cities(ctx context.Context, page Page, countryURL, countryName string) ([]Entry, error) {
	s.logger.Info("scraping cities",
		zap.String("country", countryName),
		zap.String("url", countryURL),
	)
	if err := page.Navigate(ctx, countryURL); err != nil {
		return nil, fmt.Errorf("navigate country page: %w", err)
	}
	Pause(ctx, s.cfg.Delays.SettleMin, s.cfg.Delays.SettleMax)

	layout, err := s.detectLayout(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("detect layout for %s: %w", countryName, err)
	}
	s.logger.Debug("layout detected",
		zap.String("country", countryName),
		zap.Stringer("layout", layout),
	)

	switch layout {
	case LayoutIndex:
		return s.citiesFromIndex(ctx, page, countryName)
	default:
		return s.citiesFromFlatListing(ctx, page, countryName)
	}
}

// detectLayout probes for the alphabet navigation element. Present means the
// country splits its cities across per-letter pages.
func (s *Scraper) detectLayout(ctx context.Context, page Page) (Layout, error) {
	found, err := s.locator.WaitFor(ctx, page, selLetterNav, 3, s.cfg.ProbeTimeout)
	if err != nil {
		return LayoutFlat, err
	}
	if found {
		return LayoutIndex, nil
	}
	return LayoutFlat, nil
}

// citiesFromFlatListing handles the single-container variant. A missing
// results container is soft: the country simply has no extractable cities.
func (s *Scraper) citiesFromFlatListing(ctx context.Context, page Page, countryName string) ([]Entry, error) {
	found, err := s.locator.WaitFor(ctx, page, selResults, 3, s.cfg.ProbeTimeout)
	if err != nil {
		return nil, fmt.Errorf("locate results container: %w", err)
	}
	if !found {
		s.logger.Warn("no cities found", zap.String("country", countryName))
		return nil, nil
	}
	Pause(ctx, s.cfg.Delays.SettleMin, s.cfg.Delays.SettleMax)

	doc, err := s.document(ctx, page)
	if err != nil {
		return nil, err
	}
	cities := parseCityItems(doc, s.base)
	s.logger.Info("cities scraped",
		zap.String("country", countryName),
		zap.Stringer("layout", LayoutFlat),
		zap.Int("cities", len(cities)),
	)
	return cities, nil
}

// citiesFromIndex handles the alphabetical-index variant: collect every
// per-letter listing URL first, then walk them in order. A letter page with
// no results container is skipped; a navigation error returns the cities
// accumulated so far along with the error.
func (s *Scraper) citiesFromIndex(ctx context.Context, page Page, countryName string) ([]Entry, error) {
	Pause(ctx, s.cfg.Delays.SettleMin, s.cfg.Delays.SettleMax)

	doc, err := s.document(ctx, page)
	if err != nil {
		return nil, err
	}
	letters := parseLetterLinks(doc, s.base)
	s.logger.Info("letter pages collected",
		zap.String("country", countryName),
		zap.Int("letters", len(letters)),
	)

	var cities []Entry
	for i, letterURL := range letters {
		if i > 0 {
			Pause(ctx, s.cfg.Delays.LetterMin, s.cfg.Delays.LetterMax)
		}
		if err := page.Navigate(ctx, letterURL); err != nil {
			return cities, fmt.Errorf("navigate letter page %s: %w", letterURL, err)
		}
		Pause(ctx, s.cfg.Delays.SettleMin, s.cfg.Delays.SettleMax)

		found, err := s.locator.WaitFor(ctx, page, selResults, 3, s.cfg.ProbeTimeout)
		if err != nil {
			return cities, fmt.Errorf("locate letter results: %w", err)
		}
		if !found {
			s.logger.Debug("letter page has no results container",
				zap.String("country", countryName),
				zap.String("url", letterURL),
			)
			continue
		}
		Pause(ctx, s.cfg.Delays.SectionMin, s.cfg.Delays.SectionMax)

		letterDoc, err := s.document(ctx, page)
		if err != nil {
			return cities, err
		}
		cities = append(cities, parseCityItems(letterDoc, s.base)...)
	}

	s.logger.Info("cities scraped",
		zap.String("country", countryName),
		zap.Stringer("layout", LayoutIndex),
		zap.Int("cities", len(cities)),
	)
	return cities, nil
}

func (s *Scraper) document(ctx context.Context, page Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture page dom: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page dom: %w", err)
	}
	return doc, nil
}
