package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/hash/sha256"
)

// Default file names, relative to the working directory.
const (
	DefaultResultsFile    = "open_tenders.json"
	DefaultCheckpointFile = "scrape_checkpoint.json"
)

const jsonContentType = "application/json"

// Config names the two files owned by a FileStore.
type Config struct {
	ResultsFile    string
	CheckpointFile string
}

// BlobStore receives a copy of every result snapshot.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Option customizes a FileStore.
type Option func(*FileStore)

// WithMirror uploads each result snapshot to blobs under prefix.
func WithMirror(blobs BlobStore, prefix string) Option {
	return func(s *FileStore) {
		s.mirror = blobs
		s.mirrorPrefix = prefix
	}
}

// FileStore is the checkpoint and dedup store. It is safe for concurrent
// use, although the harvester drives it from one goroutine.
type FileStore struct {
	cfg          Config
	logger       *zap.Logger
	mirror       BlobStore
	mirrorPrefix string

	mirrorMu     sync.Mutex
	lastMirrored sha256.Digest

	mu            sync.RWMutex
	records       []harvest.TenderRecord
	keys          map[string]struct{}
	checkpoint    harvest.Checkpoint
	hasCheckpoint bool
}

// Load reads both files. A missing or unusable result file yields an empty
// set, a record that does not fit the schema is skipped on its own, and a
// missing or out-of-range checkpoint yields no resume point. All of these are
// logged, none is an error.
func Load(cfg Config, logger *zap.Logger, opts ...Option) (*FileStore, error) {
	if cfg.ResultsFile == "" {
		cfg.ResultsFile = DefaultResultsFile
	}
	if cfg.CheckpointFile == "" {
		cfg.CheckpointFile = DefaultCheckpointFile
	}
	if filepath.Clean(cfg.ResultsFile) == filepath.Clean(cfg.CheckpointFile) {
		return nil, fmt.Errorf("results and checkpoint files must differ")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{
		cfg:    cfg,
		logger: logger.Named("store"),
		keys:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loadResults()
	s.loadCheckpoint()
	return s, nil
}

func (s *FileStore) loadResults() {
	data, err := os.ReadFile(s.cfg.ResultsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("results unreadable, starting empty", zap.String("file", s.cfg.ResultsFile), zap.Error(err))
		return
	}
	if err := validateDocument(data); err != nil {
		s.logger.Warn("results invalid, starting empty", zap.String("file", s.cfg.ResultsFile), zap.Error(err))
		return
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		s.logger.Warn("results undecodable, starting empty", zap.String("file", s.cfg.ResultsFile), zap.Error(err))
		return
	}
	for i, raw := range raws {
		if err := validateRecord(raw); err != nil {
			s.logger.Warn("result record skipped", zap.Int("index", i), zap.Error(err))
			continue
		}
		var rec harvest.TenderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("result record skipped", zap.Int("index", i), zap.Error(err))
			continue
		}
		if rec.DocumentLinks == nil {
			rec.DocumentLinks = []harvest.DocumentLink{}
		}
		key := rec.Key()
		if _, seen := s.keys[key]; seen {
			continue
		}
		s.keys[key] = struct{}{}
		s.records = append(s.records, rec)
	}
	s.logger.Info("results loaded", zap.Int("records", len(s.records)))
}

func (s *FileStore) loadCheckpoint() {
	data, err := os.ReadFile(s.cfg.CheckpointFile)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("checkpoint unreadable", zap.String("file", s.cfg.CheckpointFile), zap.Error(err))
		return
	}
	var cp harvest.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("checkpoint undecodable", zap.String("file", s.cfg.CheckpointFile), zap.Error(err))
		return
	}
	if !cp.Valid() {
		s.logger.Warn("checkpoint out of range", zap.Int("page", cp.Page), zap.Int("row", cp.RowIndex))
		return
	}
	s.checkpoint = cp
	s.hasCheckpoint = true
}

// Admit appends rec unless its composite key is already present.
func (s *FileStore) Admit(rec harvest.TenderRecord) bool {
	key := rec.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.keys[key]; seen {
		return false
	}
	if rec.DocumentLinks == nil {
		rec.DocumentLinks = []harvest.DocumentLink{}
	}
	s.keys[key] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

// Len returns the number of records held.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Results returns a copy of the records in admission order.
func (s *FileStore) Results() []harvest.TenderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]harvest.TenderRecord(nil), s.records...)
}

// Resume returns the last saved checkpoint, if any.
func (s *FileStore) Resume() (harvest.Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint, s.hasCheckpoint
}

// SaveCheckpoint replaces the checkpoint file.
func (s *FileStore) SaveCheckpoint(cp harvest.Checkpoint) error {
	if !cp.Valid() {
		return fmt.Errorf("invalid checkpoint page=%d row=%d", cp.Page, cp.RowIndex)
	}
	data, err := encodeJSON(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.cfg.CheckpointFile, data); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.checkpoint = cp
	s.hasCheckpoint = true
	return nil
}

// SaveResults replaces the result file with the full set and, when a mirror
// is configured, uploads the same bytes unless they match the last upload.
func (s *FileStore) SaveResults(ctx context.Context) error {
	s.mu.RLock()
	records := s.records
	if records == nil {
		records = []harvest.TenderRecord{}
	}
	data, err := encodeJSON(records)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := writeAtomic(s.cfg.ResultsFile, data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if s.mirror == nil {
		return nil
	}
	return s.mirrorSnapshot(ctx, data)
}

func (s *FileStore) mirrorSnapshot(ctx context.Context, data []byte) error {
	digest := sha256.Sum(data)
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if digest == s.lastMirrored {
		return nil
	}
	key := path.Join(s.mirrorPrefix, filepath.Base(s.cfg.ResultsFile))
	uri, err := s.mirror.PutObject(ctx, key, jsonContentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("mirror results: %w", err)
	}
	s.lastMirrored = digest
	s.logger.Debug("results mirrored", zap.String("uri", uri), zap.Stringer("sha256", digest))
	return nil
}

// Reset forgets the checkpoint so the next run starts at page 1. Records
// are kept.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.cfg.CheckpointFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	s.checkpoint = harvest.Checkpoint{}
	s.hasCheckpoint = false
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data beside name and renames it into place so readers
// never observe a partial file.
func writeAtomic(name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
