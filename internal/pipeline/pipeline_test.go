package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/club-sync/internal/category"
	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/extract"
	"github.com/pfrederiksen/club-sync/internal/heuristics"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/reconcile"
	"github.com/pfrederiksen/club-sync/internal/scraper"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

const (
	rosterURL  = "https://sao.example.edu/roster.csv"
	listingURL = "https://events.example.edu/list/"
	brokenURL  = "https://old-calendar.example.edu/"
)

type harness struct {
	store        *storage.Storage
	orchestrator *jobs.Orchestrator
	ledger       *jobs.Ledger
}

func newHarness(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()

	store, err := storage.Open(storage.Options{Path: filepath.Join(t.TempDir(), "pipeline.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	rules := heuristics.Default()
	cl := classify.MustNew(rules.ClassifierConfig())
	engine, err := reconcile.New(store, reconcile.Options{
		ProtectedFields: []string{reconcile.FieldPurpose, reconcile.FieldDescription},
		Classifier:      cl,
	})
	require.NoError(t, err)

	fetcher := scraper.NewFetcher(scraper.FetchOptions{Client: client, InitialInterval: time.Millisecond})
	d := Deps{
		Engine:           engine,
		Classifier:       cl,
		Categories:       category.NewNormalizer(store, rules.Synonyms(), time.Minute),
		Scraper:          scraper.New(fetcher, scraper.Selectors{}),
		Extractor:        extract.New(extract.Options{}),
		Schema:           rules.Schema(),
		RosterURL:        rosterURL,
		ListingURLs:      []string{listingURL},
		FallbackCategory: "General Interest",
	}
	if configure != nil {
		configure(&d)
	}

	reg := jobs.NewRegistry()
	Register(reg, d)
	ledger := jobs.NewLedger(store, nil)
	return &harness{
		store:        store,
		orchestrator: jobs.NewOrchestrator(ledger, reg, jobs.OrchestratorOptions{}),
		ledger:       ledger,
	}
}

func (h *harness) run(t *testing.T, typ entity.JobType) *entity.Job {
	t.Helper()
	ctx := context.Background()
	queued, err := h.ledger.Enqueue(ctx, typ)
	require.NoError(t, err)
	job, err := h.orchestrator.RunJob(ctx, queued.ID)
	require.NoError(t, err)
	return job
}

const rosterCSV = `Registered Independent Student Groups
Exported 2026-01-05

Name of Organization,Type,Contact Person,Contact Email,Purpose
Hiking Club Manoa,Outdoors,Kai Akana,kai@example.edu,"We hike, camp and clean trails."
ROC,sports,,roc@example.edu,
Section 1. Purpose,,,,
To foster community,,,,
Chess Society,Sport/Leisure,,,Weekly games.
Surf Club,Leisure/Sport,,,"Unterminated
`

func TestClubRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	httpmock.RegisterResponder(http.MethodGet, rosterURL, httpmock.NewStringResponder(http.StatusOK, rosterCSV))

	job := h.run(t, entity.JobClubRefresh)
	require.Equal(t, entity.JobCompleted, job.Status, job.Result.Data().Error)

	result := job.Result.Data()
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, "Processed 5 rows: 3 created, 0 updated, 0 unchanged, 2 skipped, 1 failed", result.Message)

	clubs, err := h.store.ListClubs(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(clubs))
	for _, c := range clubs {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Hiking Club Manoa", "ROC", "Chess Society"}, names)

	cats, err := h.store.ListCategories(ctx)
	require.NoError(t, err)
	catNames := make([]string, 0, len(cats))
	for _, c := range cats {
		catNames = append(catNames, c.Name)
	}
	assert.ElementsMatch(t, []string{"Outdoors", "Leisure/Recreational"}, catNames, "sports and Sport/Leisure share one category")

	// A second run changes nothing
	job = h.run(t, entity.JobClubRefresh)
	require.Equal(t, entity.JobCompleted, job.Status)
	assert.Zero(t, job.Result.Data().Count)
	assert.Contains(t, job.Result.Data().Message, "3 unchanged")
}

func TestClubRefresh_InputErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantError string
		wantDiag  string
	}{
		{
			name:      "header not found",
			body:      strings.Repeat("nothing useful here\n", 25),
			status:    http.StatusOK,
			wantError: "stage locate-header: locating header: header not found",
			wantDiag:  "line 1: nothing useful here",
		},
		{
			name:      "required column missing",
			body:      "Type,Purpose\nOutdoors,Hikes\n",
			status:    http.StatusOK,
			wantError: `required column "name" missing`,
			wantDiag:  "header: Type | Purpose",
		},
		{
			name:      "source unavailable",
			body:      "gone",
			status:    http.StatusNotFound,
			wantError: "stage fetch-roster: fetching roster",
			wantDiag:  "status: 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			httpmock.RegisterResponder(http.MethodGet, rosterURL, httpmock.NewStringResponder(tt.status, tt.body))

			job := h.run(t, entity.JobClubRefresh)
			assert.Equal(t, entity.JobFailed, job.Status)
			assert.Contains(t, job.Result.Data().Error, tt.wantError)
			assert.Contains(t, job.Result.Data().Diagnostics, tt.wantDiag)

			clubs, err := h.store.ListClubs(context.Background())
			require.NoError(t, err)
			assert.Empty(t, clubs)
		})
	}
}

const listingHTML = `<html><body>
<ul>
  <li><a href="/e/lei-making">Lei Making Night</a> - April 4, 2026</li>
  <li><a href="/e/missing">Moonlight Hike</a> - April 11, 2026</li>
  <li>Beach Cleanup 05/02/26</li>
</ul>
</body></html>`

const leiMakingHTML = `<html><body>
<h1>Lei Making Night</h1>
<h2>About this event</h2>
<p>Join us for an evening of lei making with kupuna from the community. All materials are provided.</p>
<dl><dt>Location</dt><dd>Campus Center 310</dd><dt>Sponsor</dt><dd>Hawaiian Student Association</dd></dl>
</body></html>`

func TestEventRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *Deps) {
		d.ListingURLs = []string{brokenURL, listingURL}
	})
	httpmock.RegisterResponder(http.MethodGet, brokenURL, httpmock.NewStringResponder(http.StatusGone, ""))
	httpmock.RegisterResponder(http.MethodGet, listingURL, httpmock.NewStringResponder(http.StatusOK, listingHTML))
	httpmock.RegisterResponder(http.MethodGet, "https://events.example.edu/e/lei-making", httpmock.NewStringResponder(http.StatusOK, leiMakingHTML))
	httpmock.RegisterResponder(http.MethodGet, "https://events.example.edu/e/missing", httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	job := h.run(t, entity.JobEventRefresh)
	require.Equal(t, entity.JobCompleted, job.Status, job.Result.Data().Error)
	assert.Equal(t, 3, job.Result.Data().Count)

	events, err := h.store.ListEvents(ctx, storage.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	byTitle := make(map[string]entity.Event)
	for _, ev := range events {
		byTitle[ev.Title] = ev
	}

	lei := byTitle["Lei Making Night"]
	assert.Contains(t, lei.Description, "evening of lei making")
	assert.Contains(t, lei.Description, "Source: https://events.example.edu/e/lei-making")
	assert.False(t, lei.DescriptionSynthesized)
	assert.Equal(t, "Campus Center 310", lei.Location)
	assert.Equal(t, "Hawaiian Student Association", lei.Sponsor)
	assert.Equal(t, "General Interest", lei.CategoryLabel)

	hike := byTitle["Moonlight Hike"]
	assert.True(t, strings.HasPrefix(hike.Description, extract.Placeholder))
	assert.True(t, hike.DescriptionSynthesized, "placeholder text may be replaced later")

	cleanup := byTitle["Beach Cleanup"]
	assert.Equal(t, reconcile.EventTemplate("Beach Cleanup", "General Interest"), cleanup.Description)
	require.NotNil(t, cleanup.StartTime)
	assert.Equal(t, time.May, cleanup.StartTime.Month())

	// The detail page comes back: the placeholder gives way to real text
	httpmock.RegisterResponder(http.MethodGet, "https://events.example.edu/e/missing",
		httpmock.NewStringResponder(http.StatusOK, `<html><body><article><p>A guided night hike on the Manoa ridge trail under the full moon.</p></article></body></html>`))

	job = h.run(t, entity.JobEventRefresh)
	require.Equal(t, entity.JobCompleted, job.Status)
	assert.Equal(t, 1, job.Result.Data().Count)

	again, err := h.store.FindEventByKey(ctx, hike.NaturalKey)
	require.NoError(t, err)
	assert.Contains(t, again.Description, "night hike on the Manoa ridge")
	assert.False(t, again.DescriptionSynthesized)
}

func TestEventRefresh_AllListingsFail(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.ListingURLs = []string{brokenURL}
	})
	httpmock.RegisterResponder(http.MethodGet, brokenURL, httpmock.NewStringResponder(http.StatusForbidden, "robots not welcome"))

	job := h.run(t, entity.JobEventRefresh)
	assert.Equal(t, entity.JobFailed, job.Status)
	assert.Contains(t, job.Result.Data().Error, "all 1 listing sources failed")
	assert.Contains(t, job.Result.Data().Diagnostics, "robots not welcome")
}

func TestEventRefresh_NoSources(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.ListingURLs = nil
		d.RosterURL = ""
	})

	job := h.run(t, entity.JobEventRefresh)
	assert.Equal(t, entity.JobFailed, job.Status)
	assert.Contains(t, job.Result.Data().Error, "no listing sources configured")

	job = h.run(t, entity.JobClubRefresh)
	assert.Equal(t, entity.JobFailed, job.Status)
	assert.Contains(t, job.Result.Data().Error, "no roster source configured")
}
