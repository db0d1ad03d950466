// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_HARVEST_MAX_PAGES.
const EnvPrefix = "HARVESTER"

// Mirror backends.
const (
	MirrorNone  = "none"
	MirrorLocal = "local"
	MirrorGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Harvest   HarvestConfig     `mapstructure:"harvest"`
	Selectors harvest.Selectors `mapstructure:"selectors"`
	Overlay   harvest.Overlay   `mapstructure:"overlay"`
	Timing    harvest.Timing    `mapstructure:"timing"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Ops       OpsConfig         `mapstructure:"ops"`
	Mirror    MirrorConfig      `mapstructure:"mirror"`
	DB        DBConfig          `mapstructure:"db"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Progress  ProgressConfig    `mapstructure:"progress"`
}

// HarvestConfig governs the run itself and the browser session.
type HarvestConfig struct {
	StartURL          string        `mapstructure:"start_url" validate:"required,url"`
	ResultsFile       string        `mapstructure:"results_file" validate:"required"`
	CheckpointFile    string        `mapstructure:"checkpoint_file" validate:"required"`
	FlushEvery        int           `mapstructure:"flush_every" validate:"min=1"`
	MaxPages          int           `mapstructure:"max_pages" validate:"min=0"`
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	AcceptLanguage    string        `mapstructure:"accept_language"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	WindowWidth       int           `mapstructure:"window_width" validate:"min=0"`
	WindowHeight      int           `mapstructure:"window_height" validate:"min=0"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// OpsConfig controls the optional operator HTTP server.
type OpsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// MirrorConfig selects where result snapshots are copied after each flush.
type MirrorConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=none local gcs"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres record sink. Empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns" validate:"min=0"`
}

// PubSubConfig holds metadata for run-summary notifications. Empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer" validate:"min=0"`
	MaxBatchEvents int           `mapstructure:"batch" validate:"min=0"`
	MaxBatchWait   time.Duration `mapstructure:"wait" validate:"min=0"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := harvest.DefaultConfig()

	v.SetDefault("harvest.start_url", def.StartURL)
	v.SetDefault("harvest.results_file", store.DefaultResultsFile)
	v.SetDefault("harvest.checkpoint_file", store.DefaultCheckpointFile)
	v.SetDefault("harvest.flush_every", def.FlushEvery)
	v.SetDefault("harvest.max_pages", 0)
	v.SetDefault("harvest.headless", true)
	v.SetDefault("harvest.user_agent", "")
	v.SetDefault("harvest.accept_language", "en-ZA,en;q=0.9")
	v.SetDefault("harvest.navigation_timeout", 60*time.Second)
	v.SetDefault("harvest.query_timeout", 5*time.Second)
	v.SetDefault("harvest.window_width", 1366)
	v.SetDefault("harvest.window_height", 900)

	v.SetDefault("selectors.table", def.Selectors.Table)
	v.SetDefault("selectors.rows", def.Selectors.Rows)
	v.SetDefault("selectors.detail_row_class", def.Selectors.DetailRowClass)
	v.SetDefault("selectors.next_container", def.Selectors.NextContainer)
	v.SetDefault("selectors.disabled_class", def.Selectors.DisabledClass)
	v.SetDefault("selectors.next_candidates", def.Selectors.NextCandidates)
	v.SetDefault("selectors.entry_link", def.Selectors.EntryLink)
	v.SetDefault("selectors.page_length", def.Selectors.PageLength)
	v.SetDefault("selectors.page_length_value", def.Selectors.PageLengthSize)

	v.SetDefault("overlay.dismiss", def.Overlay.Dismiss)
	v.SetDefault("overlay.repeatable", def.Overlay.Repeatable)
	v.SetDefault("overlay.max_rounds", def.Overlay.MaxRounds)
	v.SetDefault("overlay.attempt_timeout", def.Overlay.AttemptTimeout)

	v.SetDefault("timing.human_delay_min", def.Timing.HumanDelayMin)
	v.SetDefault("timing.human_delay_max", def.Timing.HumanDelayMax)
	v.SetDefault("timing.ready_timeout", def.Timing.ReadyTimeout)
	v.SetDefault("timing.ready_poll", def.Timing.ReadyPoll)
	v.SetDefault("timing.table_settle", def.Timing.TableSettle)
	v.SetDefault("timing.entry_timeout", def.Timing.EntryTimeout)
	v.SetDefault("timing.expand_timeout", def.Timing.ExpandTimeout)
	v.SetDefault("timing.expand_settle", def.Timing.ExpandSettle)
	v.SetDefault("timing.collapse_timeout", def.Timing.CollapseTimeout)
	v.SetDefault("timing.collapse_settle", def.Timing.CollapseSettle)
	v.SetDefault("timing.next_timeout", def.Timing.NextTimeout)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("ops.api_key", "")
	v.SetDefault("ops.shutdown_timeout", 5*time.Second)
	v.SetDefault("mirror.backend", MirrorNone)
	v.SetDefault("mirror.prefix", "snapshots")
	v.SetDefault("db.table", "tenders")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("progress.buffer", 1024)
	v.SetDefault("progress.batch", 100)
	v.SetDefault("progress.wait", 500*time.Millisecond)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	if c.Timing.HumanDelayMax < c.Timing.HumanDelayMin {
		errs = append(errs, errors.New("timing.human_delay_max must be >= timing.human_delay_min"))
	}
	if filepath.Clean(c.Harvest.ResultsFile) == filepath.Clean(c.Harvest.CheckpointFile) {
		errs = append(errs, errors.New("harvest.results_file and harvest.checkpoint_file must differ"))
	}
	switch c.Mirror.Backend {
	case MirrorLocal:
		if c.Mirror.Dir == "" {
			errs = append(errs, errors.New("mirror.dir must be set when mirror.backend is local"))
		}
	case MirrorGCS:
		if c.Mirror.Bucket == "" {
			errs = append(errs, errors.New("mirror.bucket must be set when mirror.backend is gcs"))
		}
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	return errors.Join(errs...)
}

// HarvestConfig projects the harvester's view of the configuration.
func (c Config) HarvestConfig() harvest.Config {
	return harvest.Config{
		StartURL:   c.Harvest.StartURL,
		FlushEvery: c.Harvest.FlushEvery,
		MaxPages:   c.Harvest.MaxPages,
		Selectors:  c.Selectors,
		Overlay:    c.Overlay,
		Timing:     c.Timing,
	}
}

// StoreConfig returns the file locations for the checkpoint store.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		ResultsFile:    c.Harvest.ResultsFile,
		CheckpointFile: c.Harvest.CheckpointFile,
	}
}
