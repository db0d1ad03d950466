package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/storage/memory"
)

func ptr(s string) *string { return &s }

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		ResultsFile:    filepath.Join(dir, "open_tenders.json"),
		CheckpointFile: filepath.Join(dir, "scrape_checkpoint.json"),
	}
}

func record(number *string, title string) harvest.TenderRecord {
	return harvest.TenderRecord{
		TenderNumber:  number,
		Title:         title,
		Category:      "Services",
		DocumentLinks: []harvest.DocumentLink{},
		Source:        harvest.SourceDOMDetails,
	}
}

func TestAdmitIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := Load(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	rec := record(ptr("RFQ/1"), "Cleaning")
	require.True(t, s.Admit(rec))
	require.False(t, s.Admit(rec))
	require.Equal(t, 1, s.Len())
}

func TestAdmitCollapsesOnCompositeKey(t *testing.T) {
	t.Parallel()

	s, err := Load(testConfig(t), nil)
	require.NoError(t, err)

	first := record(ptr("rfq/7"), "Fencing")
	second := record(ptr("RFQ/7"), "Fencing")
	second.Category = "Works"
	second.Province = ptr("Limpopo")

	require.True(t, s.Admit(first))
	require.False(t, s.Admit(second), "tender number compares case-insensitively")
	require.True(t, s.Admit(record(ptr("RFQ/7"), "fencing")), "title compares exactly")
	require.True(t, s.Admit(record(nil, "Fencing")))
	require.False(t, s.Admit(record(ptr(""), "Fencing")), "absent and empty numbers share a key")

	got := s.Results()
	require.Len(t, got, 3)
	assert.Equal(t, "Services", got[0].Category)
}

func TestLoadMissingFiles(t *testing.T) {
	t.Parallel()

	s, err := Load(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.Zero(t, s.Len())
	_, ok := s.Resume()
	require.False(t, ok)
}

func TestLoadUnusableResultsStartsEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{oops"},
		{name: "object instead of array", body: `{"title": "x"}`},
		{name: "wrong field type", body: `[{"title": 5}]`},
		{name: "missing title", body: `[{"category": "Goods"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			require.NoError(t, os.WriteFile(cfg.ResultsFile, []byte(tt.body), 0o600))

			s, err := Load(cfg, zap.NewNop())
			require.NoError(t, err)
			require.Zero(t, s.Len())
		})
	}
}

func TestLoadSkipsOnlyBadRecords(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	body := `[
  {"tenderNumber": "RFQ/A/1", "title": "Security", "category": "Services", "source": "dom-details"},
  {"tenderNumber": "X"},
  {"tenderNumber": "RFQ/A/2", "title": 7},
  {"tenderNumber": null, "title": "Catering", "category": "Services", "source": "dom-details"}
]`
	require.NoError(t, os.WriteFile(cfg.ResultsFile, []byte(body), 0o600))

	s, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	titles := make([]string, 0, 2)
	for _, rec := range s.Results() {
		titles = append(titles, rec.Title)
	}
	assert.Equal(t, []string{"Security", "Catering"}, titles)
	require.False(t, s.Admit(record(ptr("RFQ/A/1"), "Security")), "keys of kept records survive")
}

func TestLoadRebuildsKeySet(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	body := `[
  {"tenderNumber": "RFQ/A/1", "title": "Security", "category": "Services", "documentLinks": null, "source": "dom-details"},
  {"tenderNumber": null, "title": "Catering", "category": "Services", "source": "dom-details"}
]`
	require.NoError(t, os.WriteFile(cfg.ResultsFile, []byte(body), 0o600))

	s, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.False(t, s.Admit(record(ptr("rfq/a/1"), "Security")))
	require.False(t, s.Admit(record(nil, "Catering")))
	for _, rec := range s.Results() {
		require.NotNil(t, rec.DocumentLinks)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	s, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.SaveCheckpoint(harvest.Checkpoint{Page: 3, RowIndex: 7}))

	raw, err := os.ReadFile(cfg.CheckpointFile)
	require.NoError(t, err)
	require.JSONEq(t, `{"page": 3, "rowIndex": 7}`, string(raw))

	reloaded, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	cp, ok := reloaded.Resume()
	require.True(t, ok)
	require.Equal(t, harvest.Checkpoint{Page: 3, RowIndex: 7}, cp)
}

func TestCheckpointValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "page transition", body: `{"page": 2, "rowIndex": -1}`, ok: true},
		{name: "page zero", body: `{"page": 0, "rowIndex": 3}`},
		{name: "row below minus one", body: `{"page": 1, "rowIndex": -2}`},
		{name: "garbage", body: `page=1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			require.NoError(t, os.WriteFile(cfg.CheckpointFile, []byte(tt.body), 0o600))
			s, err := Load(cfg, zap.NewNop())
			require.NoError(t, err)
			_, ok := s.Resume()
			require.Equal(t, tt.ok, ok)
		})
	}

	s, err := Load(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.SaveCheckpoint(harvest.Checkpoint{Page: 0, RowIndex: 0}))
}

func TestSaveResultsWritesSnapshot(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	s, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.SaveResults(context.Background()))
	raw, err := os.ReadFile(cfg.ResultsFile)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(raw))

	rec := record(ptr("RFQ/1"), "Pipes & Valves <Phase 2>")
	rec.DocumentLinks = []harvest.DocumentLink{{Text: "Doc", URL: "https://example.org/a.pdf"}}
	require.True(t, s.Admit(rec))
	require.True(t, s.Admit(harvest.TenderRecord{Title: "Bare"}))
	require.NoError(t, s.SaveResults(context.Background()))

	raw, err = os.ReadFile(cfg.ResultsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Pipes & Valves <Phase 2>")
	assert.Contains(t, string(raw), "\n  {\n    \"tenderNumber\"")
	assert.JSONEq(t, `[
  {"tenderNumber": "RFQ/1", "title": "Pipes & Valves <Phase 2>", "category": "Services",
   "advertisedDate": null, "closingDate": null, "buyerName": null, "eSubmission": null,
   "tenderType": null, "province": null, "datePublished": null,
   "documentLinks": [{"text": "Doc", "url": "https://example.org/a.pdf"}], "source": "dom-details"},
  {"tenderNumber": null, "title": "Bare", "category": "",
   "advertisedDate": null, "closingDate": null, "buyerName": null, "eSubmission": null,
   "tenderType": null, "province": null, "datePublished": null,
   "documentLinks": [], "source": ""}
]`, string(raw))

	entries, err := os.ReadDir(filepath.Dir(cfg.ResultsFile))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not linger")
}

func TestSaveResultsMirrors(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	cfg := testConfig(t)
	s, err := Load(cfg, zap.NewNop(), WithMirror(blobs, "snapshots"))
	require.NoError(t, err)
	require.True(t, s.Admit(record(ptr("RFQ/9"), "Roofing")))
	require.NoError(t, s.SaveResults(context.Background()))

	local, err := os.ReadFile(cfg.ResultsFile)
	require.NoError(t, err)
	mirrored, ok := blobs.Object("snapshots/open_tenders.json")
	require.True(t, ok)
	require.Equal(t, local, mirrored)

	require.NoError(t, s.SaveResults(context.Background()))
	require.Equal(t, 1, blobs.Uploads(), "unchanged snapshot is not uploaded again")

	require.True(t, s.Admit(record(ptr("RFQ/10"), "Fencing")))
	require.NoError(t, s.SaveResults(context.Background()))
	require.Equal(t, 2, blobs.Uploads())
}

func TestResetKeepsResults(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	s, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	require.True(t, s.Admit(record(ptr("RFQ/1"), "Cleaning")))
	require.NoError(t, s.SaveResults(context.Background()))
	require.NoError(t, s.SaveCheckpoint(harvest.Checkpoint{Page: 4, RowIndex: 2}))

	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset(), "reset is idempotent")
	_, ok := s.Resume()
	require.False(t, ok)
	_, err = os.Stat(cfg.CheckpointFile)
	require.ErrorIs(t, err, os.ErrNotExist)

	reloaded, err := Load(cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
}

func TestLoadRejectsSameFile(t *testing.T) {
	t.Parallel()

	_, err := Load(Config{ResultsFile: "x.json", CheckpointFile: "./x.json"}, nil)
	require.Error(t, err)
}
