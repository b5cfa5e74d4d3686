package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

// DefaultDebounce is how long Watch waits for writes to settle before
// reloading.
const DefaultDebounce = 250 * time.Millisecond

// Config locates the files a Datasource reads. Either DBPath, or at least
// one of ManifestPath and DataPath, must be set. DBPath takes precedence.
type Config struct {
	ManifestPath string
	DataPath     string
	DBPath       string
	Debounce     time.Duration
}

type Option func(*Datasource)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Datasource) {
		d.logger = logger
	}
}

// WithMetrics records every load on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Datasource) {
		d.metrics = m
	}
}

// Datasource loads sensor views from disk and can follow the files for
// changes. Each load produces a new, independent view.
type Datasource struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
}

func NewDatasource(cfg Config, opts ...Option) (*Datasource, error) {
	if cfg.DBPath == "" && cfg.ManifestPath == "" && cfg.DataPath == "" {
		return nil, errors.New("no manifest, data or database path configured")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	d := &Datasource{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Datasource) source() string {
	if d.cfg.DBPath != "" {
		return SourceSQLite
	}
	return SourceCSV
}

// paths returns the files whose contents make up a view.
func (d *Datasource) paths() []string {
	if d.cfg.DBPath != "" {
		return []string{d.cfg.DBPath}
	}
	var out []string
	for _, p := range []string{d.cfg.ManifestPath, d.cfg.DataPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads the configured files into a fresh view.
func (d *Datasource) Load(ctx context.Context) (*sensors.MemoryView, error) {
	started := time.Now()
	view, err := d.load(ctx)
	d.metrics.observe(d.source(), started, view, err)
	if err != nil {
		return nil, err
	}
	d.logger.Info("loaded sensor view",
		"source", d.source(),
		"id", view.ID(),
		"sensors", view.Sensors().Len(),
		"channels", view.Channels().Len(),
		"samples", view.SampleCount(),
		"elapsed", time.Since(started),
	)
	return view, nil
}

func (d *Datasource) load(ctx context.Context) (*sensors.MemoryView, error) {
	if d.cfg.DBPath != "" {
		return LoadSQLite(ctx, d.cfg.DBPath)
	}
	var manifest *Manifest
	if d.cfg.ManifestPath != "" {
		var err error
		manifest, err = LoadManifest(d.cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
	}
	if d.cfg.DataPath == "" {
		return ReadView(ctx, manifest, nil, d.logger)
	}
	f, err := os.Open(d.cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed opening sensor data: %w", err)
	}
	defer f.Close()
	return ReadView(ctx, manifest, f, d.logger)
}

// Watch loads the configured files and then reloads them whenever they are
// written, sending each new view on the returned channel. The initial view is
// always the first value. Failed reloads are logged and skipped. The channel
// is closed once ctx is done.
func (d *Datasource) Watch(ctx context.Context) (<-chan *sensors.MemoryView, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed creating file watcher: %w", err)
	}
	// Watch the parent directories: editors and writers often replace a
	// file rather than writing it in place.
	targets := map[string]bool{}
	for _, p := range d.paths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed resolving %q: %w", p, err)
		}
		targets[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed watching %q: %w", p, err)
		}
	}
	initial, err := d.Load(ctx)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	out := make(chan *sensors.MemoryView, 1)
	out <- initial
	go func() {
		defer close(out)
		defer watcher.Close()
		timer := time.NewTimer(d.cfg.Debounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				abs, err := filepath.Abs(ev.Name)
				if err != nil || !targets[abs] {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				d.logger.Debug("sensor data changed", "file", ev.Name, "op", ev.Op.String())
				timer.Reset(d.cfg.Debounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("file watcher error", "error", err)
			case <-timer.C:
				view, err := d.Load(ctx)
				if err != nil {
					d.logger.Error("failed reloading sensor view", "error", err)
					continue
				}
				select {
				case out <- view:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
