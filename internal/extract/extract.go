// Package extract pulls a bounded description and a few labeled detail
// fields out of an event page.
//
// Strategies run from most to least specific: a heading-labeled "about"
// section found by regular expression, then configured content containers,
// then the whole body as text. The first result longer than the minimum
// length wins. Extraction never fails: malformed markup degrades to a
// placeholder that still points at the source page.
package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/k3a/html2text"

	"github.com/pfrederiksen/club-sync/internal/logger"
)

// Strategy names the method that produced a description
type Strategy string

const (
	StrategyAbout       Strategy = "about-section"
	StrategyContainer   Strategy = "container"
	StrategyBody        Strategy = "body-text"
	StrategyPlaceholder Strategy = "placeholder"
)

// Defaults
const (
	DefaultMinLength = 40
	DefaultMaxLength = 2000
	maxDetailLength  = 255
	maxDocumentBytes = 5 << 20
)

// Placeholder is the description used when nothing usable is found
const Placeholder = "No description is available for this event."

// DefaultContainers are tried when Options.Containers is empty
var DefaultContainers = []string{
	"article .event-description",
	".event-description",
	".event-details",
	"#event-description",
	"main article",
	"article",
	".content",
}

// Options configures an Extractor
type Options struct {
	MinLength  int
	MaxLength  int
	Containers []string
}

// Details are labeled fields found in key/value markup
type Details struct {
	Location string `json:"location,omitempty"`
	Time     string `json:"time,omitempty"`
	Sponsor  string `json:"sponsor,omitempty"`
}

// Result is the outcome of one extraction
type Result struct {
	Description string   `json:"description"`
	Strategy    Strategy `json:"strategy"`
	Details     Details  `json:"details"`
}

// Extractor is safe for concurrent use
type Extractor struct {
	minLength  int
	maxLength  int
	containers []string
}

// New creates an extractor, filling unset options with defaults
func New(opts Options) *Extractor {
	x := &Extractor{minLength: opts.MinLength, maxLength: opts.MaxLength, containers: opts.Containers}
	if x.minLength <= 0 {
		x.minLength = DefaultMinLength
	}
	if x.maxLength <= x.minLength {
		x.maxLength = DefaultMaxLength
	}
	if len(x.containers) == 0 {
		x.containers = DefaultContainers
	}
	return x
}

var aboutSection = regexp.MustCompile(`(?is)<h[1-6][^>]*>\s*(?:<[^>]+>\s*)*(?:about(?:\s+(?:this|the)\s+event)?|description|overview|details)\b[^<]*(?:</[^>]+>\s*)*</h[1-6]>(.*?)(?:<h[1-6][\s>]|</section>|</article>|</main>|</body>|\z)`)

// Extract returns a description and details for the page in body.
// sourceURL is appended as a provenance line.
func (x *Extractor) Extract(body io.Reader, sourceURL string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Extraction panicked, using placeholder", logger.Fields{
				"url":   sourceURL,
				"panic": fmt.Sprint(r),
			})
			res = x.Unavailable(sourceURL)
		}
	}()

	if body == nil {
		return x.Unavailable(sourceURL)
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes))
	if err != nil || len(raw) == 0 {
		return x.Unavailable(sourceURL)
	}
	html := string(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return x.Unavailable(sourceURL)
	}
	doc.Find("script, style, noscript, template").Remove()

	details := findDetails(doc)

	text, strategy := x.describe(html, doc)
	if strategy == StrategyPlaceholder {
		res = x.Unavailable(sourceURL)
		res.Details = details
		return res
	}

	return Result{
		Description: withProvenance(text, sourceURL),
		Strategy:    strategy,
		Details:     details,
	}
}

// describe runs the strategies in order
func (x *Extractor) describe(html string, doc *goquery.Document) (string, Strategy) {
	if m := aboutSection.FindStringSubmatch(html); m != nil {
		if text := x.bound(toText(m[1])); x.longEnough(text) {
			return text, StrategyAbout
		}
	}

	for _, sel := range x.containers {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		inner, err := node.Html()
		if err != nil {
			continue
		}
		if text := x.bound(toText(inner)); x.longEnough(text) {
			return text, StrategyContainer
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find("nav, header, footer, aside, form").Remove()
	inner, err := body.Html()
	if err == nil {
		if text := x.bound(toText(inner)); x.longEnough(text) {
			return text, StrategyBody
		}
	}

	return "", StrategyPlaceholder
}

func (x *Extractor) longEnough(text string) bool {
	return utf8.RuneCountInString(text) > x.minLength
}

// bound truncates text to the maximum length, preferring a word boundary
func (x *Extractor) bound(text string) string {
	return truncate(text, x.maxLength)
}

// Unavailable is the result for a page that could not be retrieved or read
func (x *Extractor) Unavailable(sourceURL string) Result {
	return Result{
		Description: withProvenance(Placeholder, sourceURL),
		Strategy:    StrategyPlaceholder,
	}
}

func withProvenance(text, sourceURL string) string {
	if sourceURL == "" {
		return text
	}
	return text + "\n\nSource: " + sourceURL
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// toText converts an HTML fragment to plain text with tidy whitespace:
// inner runs of spaces collapsed, at most one blank line between paragraphs.
func toText(fragment string) string {
	text := strings.ReplaceAll(html2text.HTML2Text(fragment), "\r", "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	text = blankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \n"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
