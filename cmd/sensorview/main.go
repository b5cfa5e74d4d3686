package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"

	"git.sr.ht/~whereswaldon/sensorview/backend"
	"git.sr.ht/~whereswaldon/sensorview/display"
	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

type config struct {
	manifestPath string
	dataPath     string
	dbPath       string
	savePath     string
	start        time.Time
	step         time.Duration
	interval     time.Duration
	count        int
	watch        bool
	sensor       sensors.SensorID
	channel      sensors.ChannelID
	metricsAddr  string
	logFormat    string
	logLevel     slog.Level
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), `%[1]s: replay historical sensor data through the sensor panels
Usage:

 %[1]s -manifest sensors.yaml -data readings.csv -step PT5M

OR

 %[1]s -db snapshot.db -at 2024-01-01T00:00:00Z -count 10

Every flag can also be set through the SENSORVIEW_<NAME> environment
variable, for example SENSORVIEW_DATA=readings.csv.

`, fs.Name())
		fs.PrintDefaults()
	}
}

func envName(flagName string) string {
	return "SENSORVIEW_" + strcase.ToScreamingSnake(flagName)
}

// parseConfig reads flags from args, with defaults taken from the
// environment through getenv.
func parseConfig(name string, args []string, getenv func(string) string) (config, error) {
	getEnv := func(flagName, defaultVal string) string {
		if v := getenv(envName(flagName)); v != "" {
			return v
		}
		return defaultVal
	}
	getEnvInt := func(flagName string, defaultVal int) int {
		raw := getEnv(flagName, "")
		if raw == "" {
			return defaultVal
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			slog.Warn("invalid env var, using default", "key", envName(flagName), "value", raw, "default", defaultVal)
			return defaultVal
		}
		return v
	}
	getEnvBool := func(flagName string, defaultVal bool) bool {
		raw := getEnv(flagName, "")
		if raw == "" {
			return defaultVal
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			slog.Warn("invalid env var, using default", "key", envName(flagName), "value", raw, "default", defaultVal)
			return defaultVal
		}
		return v
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = usage(fs)
	manifestPath := fs.String("manifest", getEnv("manifest", ""), "YAML manifest describing sensors and channels")
	dataPath := fs.String("data", getEnv("data", ""), "CSV file of sensor readings")
	dbPath := fs.String("db", getEnv("db", ""), "SQLite snapshot to load instead of manifest and data")
	savePath := fs.String("save", getEnv("save", ""), "Write each loaded view to this SQLite snapshot")
	at := fs.String("at", getEnv("at", ""), "ISO 8601 time to start replaying from (default: start of the data)")
	step := fs.String("step", getEnv("step", "PT1M"), "ISO 8601 duration the time cursor advances per tick")
	interval := fs.String("interval", getEnv("interval", "1s"), "Wall-clock time between ticks")
	count := fs.Int("count", getEnvInt("count", 0), "Number of ticks to print; 0 replays to the end of the data")
	watch := fs.Bool("watch", getEnvBool("watch", false), "Reload the data whenever its files change")
	sensor := fs.String("sensor", getEnv("sensor", ""), "Sensor to show in detail (default: first sensor)")
	channel := fs.String("channel", getEnv("channel", ""), "Channel to shade the heatmap by (default: first channel)")
	metricsAddr := fs.String("metrics-addr", getEnv("metrics-addr", ""), "Serve Prometheus metrics on this address")
	logFormat := fs.String("log-format", getEnv("log-format", "text"), "Log format: text, json or tint (colored text)")
	logLevel := fs.String("log-level", getEnv("log-level", "info"), "Log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg := config{
		manifestPath: *manifestPath,
		dataPath:     *dataPath,
		dbPath:       *dbPath,
		savePath:     *savePath,
		count:        *count,
		watch:        *watch,
		sensor:       sensors.SensorID(*sensor),
		channel:      sensors.ChannelID(*channel),
		metricsAddr:  *metricsAddr,
		logFormat:    *logFormat,
	}
	if cfg.dbPath == "" && cfg.manifestPath == "" && cfg.dataPath == "" {
		return config{}, errors.New("one of -db, -manifest or -data is required")
	}
	if *at != "" {
		start, err := iso8601.ParseString(*at)
		if err != nil {
			return config{}, fmt.Errorf("failed parsing -at: %w", err)
		}
		cfg.start = start
	}
	d, err := duration.Parse(*step)
	if err != nil {
		return config{}, fmt.Errorf("failed parsing -step: %w", err)
	}
	cfg.step = d.ToTimeDuration()
	if cfg.step <= 0 {
		return config{}, fmt.Errorf("-step must be positive, got %q", *step)
	}
	if cfg.interval, err = time.ParseDuration(*interval); err != nil || cfg.interval <= 0 {
		return config{}, fmt.Errorf("invalid -interval %q", *interval)
	}
	if cfg.count < 0 {
		return config{}, fmt.Errorf("-count must not be negative, got %d", cfg.count)
	}
	if err := cfg.logLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return config{}, fmt.Errorf("invalid -log-level: %w", err)
	}
	switch cfg.logFormat {
	case "text", "json", "tint":
	default:
		return config{}, fmt.Errorf("invalid -log-format %q", cfg.logFormat)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	switch cfg.logFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.logLevel,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// printSnapshot writes the sensor table and heatmap values as aligned text.
func printSnapshot(w io.Writer, snap display.Snapshot) error {
	fmt.Fprintf(w, "== %s  sensor=%s  channel=%s  cursor=%d\n",
		snap.Time.Format(time.RFC3339), snap.Sensor, snap.Channel, snap.Cursor)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, col := range snap.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col.Title)
	}
	fmt.Fprintln(tw, "\theat")
	for _, row := range snap.Rows {
		fmt.Fprintf(tw, "%s\t%s", row.Sensor, row.Group)
		for _, cell := range row.Cells {
			fmt.Fprintf(tw, "\t%s", cell)
		}
		if v, ok := snap.Values[row.ID]; ok {
			fmt.Fprintf(tw, "\t%.2f", v)
		} else {
			fmt.Fprint(tw, "\t-")
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(snap.Legend) > 0 {
		fmt.Fprintf(w, "legend: %v\n", snap.Legend)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func run(ctx context.Context, cfg config, out io.Writer, logger *slog.Logger, reg prometheus.Registerer) error {
	metrics := backend.NewMetrics(reg)
	ds, err := backend.NewDatasource(backend.Config{
		ManifestPath: cfg.manifestPath,
		DataPath:     cfg.dataPath,
		DBPath:       cfg.dbPath,
	}, backend.WithLogger(logger), backend.WithMetrics(metrics))
	if err != nil {
		return err
	}

	var views <-chan *sensors.MemoryView
	if cfg.watch {
		views, err = ds.Watch(ctx)
		if err != nil {
			return err
		}
	} else {
		view, err := ds.Load(ctx)
		if err != nil {
			return err
		}
		ch := make(chan *sensors.MemoryView, 1)
		ch <- view
		views = ch
	}

	sel := selection.New(selection.WithLogger(logger))
	panels := display.Attach(sel)
	defer panels.Detach()

	apply := func(view *sensors.MemoryView) {
		if cfg.savePath != "" {
			if err := backend.SaveSQLite(ctx, cfg.savePath, view); err != nil {
				logger.Error("failed saving snapshot", "path", cfg.savePath, "error", err)
			} else {
				logger.Info("saved snapshot", "path", cfg.savePath, "id", view.ID())
			}
		}
		sel.SetDataView(view)
	}
	apply(<-views)
	if cfg.sensor != "" {
		sel.SetSensorID(cfg.sensor)
	}
	if cfg.channel != "" {
		sel.SetChannelID(cfg.channel)
	}

	cursor := cfg.start
	if cursor.IsZero() {
		cursor, _ = sel.DataView().TimeRange()
	}
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for ticks := 0; cfg.count == 0 || ticks < cfg.count; ticks++ {
		sel.SetTime(cursor)
		if err := printSnapshot(out, panels.Snapshot(sel)); err != nil {
			return fmt.Errorf("failed writing output: %w", err)
		}
		if cfg.count > 0 && ticks+1 >= cfg.count {
			return nil
		}
		cursor = cursor.Add(cfg.step)
		if _, end := sel.DataView().TimeRange(); cfg.count == 0 && !cfg.watch && cursor.After(end) {
			return nil
		}
	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case view, ok := <-views:
				if !ok {
					views = nil
					continue
				}
				logger.Info("applying reloaded view", "id", view.ID())
				apply(view)
			case <-ticker.C:
				break wait
			}
		}
	}
	return nil
}

func main() {
	cfg, err := parseConfig(os.Args[0], os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	var metricsSrv *http.Server
	if cfg.metricsAddr != "" {
		metricsSrv = startMetricsServer(cfg.metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := run(ctx, cfg, os.Stdout, logger, prometheus.DefaultRegisterer)
	if metricsSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutCtx); err != nil {
			logger.Warn("failed stopping metrics server", "error", err)
		}
	}
	if runErr != nil {
		logger.Error("sensorview failed", "error", runErr)
		os.Exit(1)
	}
}
