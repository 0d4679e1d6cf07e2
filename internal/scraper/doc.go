// Package scraper fetches remote sources and parses event listing pages.
//
// The Fetcher performs rate-limited GET requests with exponential backoff on
// network errors and 5xx responses, and reads file:// URLs from disk. The
// listing parser extracts event entries from an HTML page either through
// configured CSS selectors or, failing that, by scanning list items and table
// rows for text that contains a date. Entries are deduplicated by natural key.
package scraper
