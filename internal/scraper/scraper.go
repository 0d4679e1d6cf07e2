package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// Selectors locate listing entries on a structured page. Title, Date, Link
// and Category are evaluated relative to each Item match.
type Selectors struct {
	Item     string
	Title    string
	Date     string
	Link     string
	Category string
}

// Listing is one event entry found on a listing page
type Listing struct {
	Title     string
	DateText  string
	StartTime *time.Time
	URL       string // absolute link to the detail page, if any
	Category  string
	Raw       string // collapsed text of the entry
	Key       string // natural key of (Title, StartTime)
}

// Scraper fetches listing pages and parses their entries
type Scraper struct {
	fetcher   *Fetcher
	selectors Selectors
	now       func() time.Time
}

// New creates a Scraper
func New(fetcher *Fetcher, selectors Selectors) *Scraper {
	return &Scraper{
		fetcher:   fetcher,
		selectors: selectors,
		now:       time.Now,
	}
}

// FetchListings fetches one listing page and returns its entries
func (s *Scraper) FetchListings(ctx context.Context, pageURL string) ([]Listing, error) {
	body, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.Parse(body, pageURL)
}

// Parse extracts entries from an already fetched listing page
func (s *Scraper) Parse(body []byte, pageURL string) ([]Listing, error) {
	return ParseListings(bytes.NewReader(body), pageURL, s.selectors, s.now())
}

// FetchPage returns the raw body of a detail page
func (s *Scraper) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return s.fetcher.Fetch(ctx, pageURL)
}

// ParseListings extracts event entries from an HTML listing page.
//
// When sel.Item is set and matches, entries come from the configured
// selectors. Otherwise every li and tr whose text contains a date is taken
// as an entry. Relative links are resolved against baseURL, dates without a
// year take the year of now, and entries are deduplicated by natural key.
func ParseListings(r io.Reader, baseURL string, sel Selectors, now time.Time) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	listings := make([]Listing, 0)

	// Strategy 1: configured selectors
	if sel.Item != "" {
		doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
			if l, ok := fromSelectors(item, sel, base, now); ok {
				listings = append(listings, l)
			}
		})
	}

	// Strategy 2: generic list items and table rows that mention a date
	if len(listings) == 0 {
		doc.Find("li, tr").Each(func(_ int, item *goquery.Selection) {
			if item.Find("li, tr").Length() > 0 {
				return
			}
			if l, ok := fromGeneric(item, base, now); ok {
				listings = append(listings, l)
			}
		})
	}

	// Deduplicate by natural key
	seen := make(map[string]bool)
	unique := make([]Listing, 0, len(listings))
	for _, l := range listings {
		if !seen[l.Key] {
			seen[l.Key] = true
			unique = append(unique, l)
		}
	}

	return unique, nil
}

func fromSelectors(item *goquery.Selection, sel Selectors, base *url.URL, now time.Time) (Listing, bool) {
	l := Listing{Raw: collapse(item.Text())}

	if sel.Title != "" {
		l.Title = collapse(item.Find(sel.Title).First().Text())
	}
	if l.Title == "" {
		l.Title = collapse(item.Find("h1, h2, h3, h4, h5, h6, a").First().Text())
	}
	if l.Title == "" {
		return Listing{}, false
	}

	if sel.Date != "" {
		d := item.Find(sel.Date).First()
		if dt, ok := d.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			l.DateText = strings.TrimSpace(dt)
		} else {
			l.DateText = collapse(d.Text())
		}
	}
	if l.DateText == "" {
		if dt, ok := item.Find("time[datetime]").First().Attr("datetime"); ok {
			l.DateText = strings.TrimSpace(dt)
		}
	}
	if l.DateText == "" {
		l.DateText = entity.ExtractDate(l.Raw)
	}

	linkSel := item.Find("a[href]").First()
	if sel.Link != "" {
		linkSel = item.Find(sel.Link).First()
	}
	l.URL = resolve(base, linkSel)

	if sel.Category != "" {
		l.Category = collapse(item.Find(sel.Category).First().Text())
	}

	return finish(l, now), true
}

func fromGeneric(item *goquery.Selection, base *url.URL, now time.Time) (Listing, bool) {
	raw := collapse(item.Text())
	dateText := ""
	if dt, ok := item.Find("time[datetime]").First().Attr("datetime"); ok {
		dateText = strings.TrimSpace(dt)
	}
	if dateText == "" {
		dateText = entity.ExtractDate(raw)
	}
	if dateText == "" {
		return Listing{}, false
	}

	link := item.Find("a[href]").First()
	title := collapse(link.Text())
	if title == "" || title == dateText {
		title = strings.Trim(strings.Replace(raw, dateText, "", 1), " -–—|,:")
		title = collapse(title)
	}
	if title == "" {
		return Listing{}, false
	}

	l := Listing{
		Title:    title,
		DateText: dateText,
		URL:      resolve(base, link),
		Raw:      raw,
	}
	return finish(l, now), true
}

func finish(l Listing, now time.Time) Listing {
	l.StartTime = entity.ParseDate(l.DateText, now)
	l.Key = entity.EventKey(l.Title, l.StartTime)
	return l
}

func resolve(base *url.URL, link *goquery.Selection) string {
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
