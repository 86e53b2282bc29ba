package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// resolveHref normalizes an anchor href against the site base URL.
// Absolute hrefs pass through, relative hrefs are resolved against base, and
// a missing or unparsable href yields nil.
func resolveHref(base *url.URL, href string, ok bool) *string {
	if !ok || strings.TrimSpace(href) == "" {
		return nil
	}
	if strings.HasPrefix(href, "http") {
		return &href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(ref).String()
	return &resolved
}

// entryFromAnchor extracts a name/url pair from an anchor selection. Anchors
// with no display text carry nothing to key on and are dropped.
func entryFromAnchor(base *url.URL, anchor *goquery.Selection) (Entry, bool) {
	name := strings.TrimSpace(anchor.Text())
	if name == "" {
		return Entry{}, false
	}
	href, ok := anchor.Attr("href")
	return Entry{Name: name, URL: resolveHref(base, href, ok)}, true
}

// parseCountrySections enumerates the country directory page. Each
// top-level section block holds nested list groups of country anchors; the
// result preserves section boundaries so the crawler can pace between them.
func parseCountrySections(doc *goquery.Document, base *url.URL) [][]Entry {
	var sections [][]Entry
	doc.Find(selCountrySections).Each(func(_ int, section *goquery.Selection) {
		var entries []Entry
		section.Find("ul").Each(func(_ int, list *goquery.Selection) {
			list.Find("li").Each(func(_ int, item *goquery.Selection) {
				anchor := item.Find("a").First()
				if anchor.Length() == 0 {
					return
				}
				if entry, ok := entryFromAnchor(base, anchor); ok {
					entries = append(entries, entry)
				}
			})
		})
		sections = append(sections, entries)
	})
	return sections
}

// parseCityItems enumerates the city list items of a results container.
// The same shape serves both the flat listing and each per-letter page.
func parseCityItems(doc *goquery.Document, base *url.URL) []Entry {
	var entries []Entry
	doc.Find(selResults + " ul li.b-list-table__item").Each(func(_ int, item *goquery.Selection) {
		anchor := item.Find("span.b-list-table__item-name a").First()
		if anchor.Length() == 0 {
			return
		}
		if entry, ok := entryFromAnchor(base, anchor); ok {
			entries = append(entries, entry)
		}
	})
	return entries
}

// parseLetterLinks collects the per-letter listing URLs from the lower
// register of the alphabet navigation table. Only the first non-label cell
// of each row carries city links; the left_part cell is the letter label.
func parseLetterLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find(selLetterNav + " tr.lower").Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").Not(".left_part").First()
		if cell.Length() == 0 {
			return
		}
		cell.Find("a").Each(func(_ int, anchor *goquery.Selection) {
			href, ok := anchor.Attr("href")
			if resolved := resolveHref(base, href, ok); resolved != nil {
				links = append(links, *resolved)
			}
		})
	})
	return links
}
