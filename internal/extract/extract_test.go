package extract

import (
	"errors"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourceURL = "https://events.example.edu/e/42"

func loadFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExtract_AboutSection(t *testing.T) {
	res := New(Options{}).Extract(loadFixture(t, "about_section.html"), sourceURL)

	assert.Equal(t, StrategyAbout, res.Strategy)
	assert.Contains(t, res.Description, "Join us for an evening of lei making")
	assert.Contains(t, res.Description, "Bring a friend!")
	assert.NotContains(t, res.Description, "Hula Night", "section ends at the next heading")
	assert.NotContains(t, res.Description, "tracking")
	assert.True(t, strings.HasSuffix(res.Description, "\n\nSource: "+sourceURL))

	assert.Equal(t, Details{
		Location: "Campus Center 310",
		Time:     "April 4, 2026 6:00 PM",
		Sponsor:  "Hawaiian Student Association",
	}, res.Details)
}

func TestExtract_Container(t *testing.T) {
	res := New(Options{}).Extract(loadFixture(t, "container.html"), sourceURL)

	assert.Equal(t, StrategyContainer, res.Strategy)
	assert.Contains(t, res.Description, "guided hike up Manoa Falls trail")
	assert.Equal(t, "Manoa Falls trailhead", res.Details.Location)
	assert.Equal(t, "Saturday 8:00 AM", res.Details.Time)
	assert.Equal(t, "Hiking Club Manoa", res.Details.Sponsor)
}

func TestExtract_BodyFallback(t *testing.T) {
	res := New(Options{}).Extract(loadFixture(t, "body_only.html"), sourceURL)

	assert.Equal(t, StrategyBody, res.Strategy)
	assert.Contains(t, res.Description, "Spring career fair")
	assert.NotContains(t, res.Description, "Login")
	assert.NotContains(t, res.Description, "Copyright")
}

func TestExtract_Placeholder(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty document", body: ""},
		{name: "too short", body: "<html><body><p>TBA</p></body></html>"},
		{name: "garbage markup", body: "<<<div>>><p<p<</"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(Options{}).Extract(strings.NewReader(tt.body), sourceURL)
			assert.Equal(t, StrategyPlaceholder, res.Strategy)
			assert.Equal(t, Placeholder+"\n\nSource: "+sourceURL, res.Description)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestExtract_ReadErrorAndNilBody(t *testing.T) {
	x := New(Options{})

	res := x.Extract(failingReader{}, sourceURL)
	assert.Equal(t, StrategyPlaceholder, res.Strategy)

	res = x.Extract(nil, sourceURL)
	assert.Equal(t, StrategyPlaceholder, res.Strategy)
	assert.Contains(t, res.Description, sourceURL)
}

func TestExtract_BoundedLength(t *testing.T) {
	long := strings.Repeat("Lorem ipsum dolor sit amet. ", 200)
	x := New(Options{MinLength: 10, MaxLength: 100})

	res := x.Extract(strings.NewReader("<html><body><article><p>"+long+"</p></article></body></html>"), "")

	assert.Equal(t, StrategyContainer, res.Strategy)
	assert.LessOrEqual(t, utf8.RuneCountInString(res.Description), 101)
	assert.True(t, strings.HasSuffix(res.Description, "…"))
}

func TestExtract_CustomContainers(t *testing.T) {
	page := `<html><body><section id="blurb">A very specific container that holds the whole event description text.</section></body></html>`
	res := New(Options{Containers: []string{"#blurb"}}).Extract(strings.NewReader(page), sourceURL)

	assert.Equal(t, StrategyContainer, res.Strategy)
	assert.Contains(t, res.Description, "very specific container")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "hello…", truncate("hello world", 8))
}
