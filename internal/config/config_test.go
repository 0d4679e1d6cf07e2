package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.Database.Driver)
	assert.Equal(t, 30*time.Minute, s.Worker.LeaseTimeout)
	assert.Equal(t, "General Interest", s.Reconcile.FallbackCategory)
	assert.Equal(t, []string{"purpose", "description"}, s.Reconcile.ProtectedFields)
	assert.Equal(t, "merge", s.Reconcile.DedupPolicy)
	assert.Equal(t, 40, s.Extract.MinLength)
	assert.Zero(t, s.Worker.StageTimeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "club-sync.yaml")
	content := `
database:
  path: /var/lib/club-sync/data.db
worker:
  lease_timeout: 45m
  stage_timeout: 2m
sources:
  roster_url: https://example.edu/roster.csv
  listing_urls:
    - https://example.edu/events
reconcile:
  dedup_policy: report
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CLUBSYNC_SERVER_INGEST_SECRET", "s3cret")
	t.Setenv("CLUBSYNC_RECONCILE_FULL_REIMPORT", "true")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/club-sync/data.db", s.Database.Path)
	assert.Equal(t, 45*time.Minute, s.Worker.LeaseTimeout)
	assert.Equal(t, 2*time.Minute, s.Worker.StageTimeout)
	assert.Equal(t, "https://example.edu/roster.csv", s.Sources.RosterURL)
	assert.Equal(t, []string{"https://example.edu/events"}, s.Sources.ListingURLs)
	assert.Equal(t, "report", s.Reconcile.DedupPolicy)
	assert.Equal(t, "s3cret", s.Server.IngestSecret)
	assert.True(t, s.Reconcile.FullReimport)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Settings) {}},
		{
			name:    "unknown driver",
			mutate:  func(s *Settings) { s.Database.Driver = "postgres" },
			wantErr: "database.driver",
		},
		{
			name:    "mysql needs dsn",
			mutate:  func(s *Settings) { s.Database.Driver = "mysql" },
			wantErr: "database.dsn",
		},
		{
			name:    "bad dedup policy",
			mutate:  func(s *Settings) { s.Reconcile.DedupPolicy = "delete" },
			wantErr: "dedup_policy",
		},
		{
			name:    "non-positive lease",
			mutate:  func(s *Settings) { s.Worker.LeaseTimeout = 0 },
			wantErr: "lease_timeout",
		},
		{
			name:    "extract bounds inverted",
			mutate:  func(s *Settings) { s.Extract.MaxLength = 10 },
			wantErr: "extract.max_length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
