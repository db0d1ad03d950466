package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/app"
	"github.com/JakeFAU/tender-harvester/internal/browser"
	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/publisher/memory"
)

type fixture struct {
	dir        string
	config     string
	results    string
	checkpoint string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		config:     filepath.Join(dir, "harvester.yaml"),
		results:    filepath.Join(dir, "open_tenders.json"),
		checkpoint: filepath.Join(dir, "scrape_checkpoint.json"),
	}
	yaml := fmt.Sprintf("harvest:\n  results_file: %s\n  checkpoint_file: %s\nlogging:\n  development: false\n  level: error\n", f.results, f.checkpoint)
	require.NoError(t, os.WriteFile(f.config, []byte(yaml), 0o600))
	return f
}

func (f fixture) execute(t *testing.T, opts []app.Option, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, opts...)
	cmd.SetArgs(append(args, "--config", f.config, "--env-file", ""))
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusWithoutFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	out, err := f.execute(t, nil, "status")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Records)
	assert.Nil(t, report.Checkpoint)
	assert.Equal(t, f.results, report.ResultsFile)
}

func TestStatusReportsCheckpointAndRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.results, []byte(`[{"tenderNumber":"A1","title":"Roof","category":"","advertisedDate":null,"closingDate":null,"buyerName":null,"eSubmission":null,"tenderType":null,"province":null,"datePublished":null,"documentLinks":[],"source":"dom-details"}]`), 0o600))
	require.NoError(t, os.WriteFile(f.checkpoint, []byte(`{"page":4,"rowIndex":2}`), 0o600))

	out, err := f.execute(t, nil, "status")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Records)
	require.NotNil(t, report.Checkpoint)
	assert.Equal(t, harvest.Checkpoint{Page: 4, RowIndex: 2}, *report.Checkpoint)
}

func TestResetRemovesCheckpointOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.results, []byte(`[]`), 0o600))
	require.NoError(t, os.WriteFile(f.checkpoint, []byte(`{"page":2,"rowIndex":-1}`), 0o600))

	out, err := f.execute(t, nil, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	_, err = os.Stat(f.checkpoint)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(f.results)
	require.NoError(t, err)

	_, err = f.execute(t, nil, "reset")
	require.NoError(t, err, "reset is idempotent")
}

func TestRunFailsWhenBrowserCannotLaunch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var got browser.Config
	opts := []app.Option{
		app.WithLogger(zap.NewNop()),
		app.WithPublisher(memory.New()),
		app.WithPageFactory(func(cfg browser.Config, _ *zap.Logger) (harvest.Page, error) {
			got = cfg
			return nil, errors.New("chrome not installed")
		}),
	}
	_, err := f.execute(t, opts, "run", "--headful", "--max-pages", "2")
	require.ErrorContains(t, err, "launch browser")
	assert.False(t, got.Headless)
}

func TestRunRejectsNegativeMaxPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.execute(t, nil, "run", "--max-pages", "-1")
	require.ErrorContains(t, err, "--max-pages")
}

func TestBadConfigFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.config, []byte("harvest:\n  flush_every: 0\n"), 0o600))
	_, err := f.execute(t, nil, "status")
	require.ErrorContains(t, err, "FlushEvery")
}
