// Package snapshot persists one dated JSON artifact per crawl run and serves
// as the fallback read source when the relational store is empty for a
// country. Exactly one artifact exists per calendar date; a re-run for the
// same date supersedes the prior artifact.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	subdir     = "scrape_countries_cities"
	nameSuffix = "_countries_cities.json"
	dateLayout = "2006-01-02"
)

// CityEntry is one city inside a snapshot record.
type CityEntry struct {
	Name string  `json:"name"`
	URL  *string `json:"url"`
}

// CountryRecord is one country with its nested cities, in scraped order.
type CountryRecord struct {
	Country string      `json:"country"`
	URL     *string     `json:"url"`
	Cities  []CityEntry `json:"cities"`
}

// Writer manages the dated artifact lifecycle for crawl runs.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at baseDir. The artifact directory is
// created lazily on first write.
func NewWriter(baseDir string) *Writer {
	return &Writer{dir: filepath.Join(baseDir, subdir)}
}

// Path returns the artifact path for the given run date.
func (w *Writer) Path(date time.Time) string {
	return filepath.Join(w.dir, date.Format(dateLayout)+nameSuffix)
}

// Write serializes the full nested structure to the dated artifact,
// replacing any artifact already present for that date. The orchestrator
// calls this after every processed country so a crash mid-run still leaves
// completed countries recoverable.
func (w *Writer) Write(date time.Time, records []CountryRecord) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(w.Path(date), data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Discard removes the artifact for the given date. Missing artifacts are a
// no-op so failed runs that never wrote anything discard cleanly.
func (w *Writer) Discard(date time.Time) error {
	if err := os.Remove(w.Path(date)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

// Latest loads the most recent dated artifact. It returns the artifact
// path, its records, and found=false when no artifact exists.
func (w *Writer) Latest() (string, []CountryRecord, bool, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*"+nameSuffix))
	if err != nil {
		return "", nil, false, fmt.Errorf("list snapshots: %w", err)
	}
	if len(matches) == 0 {
		return "", nil, false, nil
	}
	// Dated names sort lexicographically in chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	path := matches[0]

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the writer's own directory.
	if err != nil {
		return "", nil, false, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var records []CountryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return "", nil, false, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return path, records, true, nil
}

// CitiesFor returns the named country's city list from the latest artifact,
// or an empty slice when the country or artifact is absent.
func (w *Writer) CitiesFor(country string) ([]CityEntry, error) {
	_, records, found, err := w.Latest()
	if err != nil || !found {
		return nil, err
	}
	for _, record := range records {
		if record.Country == country {
			return record.Cities, nil
		}
	}
	return nil, nil
}
