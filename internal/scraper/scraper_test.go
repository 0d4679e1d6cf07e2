package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestParseListings_Selectors(t *testing.T) {
	sel := Selectors{
		Item:     "li.event",
		Title:    ".title",
		Date:     ".when",
		Link:     ".title a",
		Category: ".category",
	}

	listings, err := ParseListings(openFixture(t, "listing_structured.html"), "https://events.example.edu/list/", sel, now)
	require.NoError(t, err)
	require.Len(t, listings, 2, "duplicate and untitled entries are dropped")

	walk := listings[0]
	assert.Equal(t, "Lantern Walk", walk.Title)
	assert.Equal(t, "2026-03-13T18:00:00Z", walk.DateText)
	require.NotNil(t, walk.StartTime)
	assert.Equal(t, time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC), *walk.StartTime)
	assert.Equal(t, "https://events.example.edu/events/lantern-walk", walk.URL)
	assert.Equal(t, "Cultural", walk.Category)

	fair := listings[1]
	assert.Equal(t, "Career Fair", fair.Title)
	require.NotNil(t, fair.StartTime)
	assert.Equal(t, time.April, fair.StartTime.Month())
	assert.Equal(t, "https://calendar.example.edu/detail/42", fair.URL)
	assert.Equal(t, "academic", fair.Category)
	assert.NotEqual(t, walk.Key, fair.Key)
}

func TestParseListings_Generic(t *testing.T) {
	listings, err := ParseListings(openFixture(t, "listing_generic.html"), "https://events.example.edu/list/index.html", Selectors{}, now)
	require.NoError(t, err)
	require.Len(t, listings, 3)

	tests := []struct {
		title string
		url   string
		year  int
		month time.Month
		day   int
	}{
		{"Manoa Falls Hike", "https://events.example.edu/list/detail/hike.html", 2026, time.January, 24},
		{"Beach Cleanup", "", 2026, time.February, 15},
		{"Spring Concert", "https://events.example.edu/e/spring-concert", 2026, time.April, 4},
	}

	for i, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			l := listings[i]
			assert.Equal(t, tt.title, l.Title)
			assert.Equal(t, tt.url, l.URL)
			require.NotNil(t, l.StartTime)
			assert.Equal(t, tt.year, l.StartTime.Year())
			assert.Equal(t, tt.month, l.StartTime.Month())
			assert.Equal(t, tt.day, l.StartTime.Day())
		})
	}
}

func TestParseListings_SelectorsFallBackToGeneric(t *testing.T) {
	sel := Selectors{Item: "div.nothing-here"}
	listings, err := ParseListings(openFixture(t, "listing_generic.html"), "https://events.example.edu/", sel, now)
	require.NoError(t, err)
	assert.Len(t, listings, 3)
}

func TestParseListings_Empty(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"no lists", `<html><body><p>No events</p></body></html>`},
		{"undated items", `<ul><li>Coming soon</li><li>Stay tuned</li></ul>`},
		{"empty document", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listings, err := ParseListings(strings.NewReader(tt.html), "https://example.edu/", Selectors{}, now)
			require.NoError(t, err)
			assert.Empty(t, listings)
		})
	}
}

func TestScraper_FetchListings(t *testing.T) {
	page, err := os.ReadFile(filepath.Join("testdata", "listing_generic.html"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(page)
	}))
	defer server.Close()

	s := New(NewFetcher(FetchOptions{}), Selectors{})
	s.now = func() time.Time { return now }

	listings, err := s.FetchListings(context.Background(), server.URL+"/list/")
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, server.URL+"/list/detail/hike.html", listings[0].URL)
}
