package backend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// column is one data column of a wide CSV file, headed "sensor/channel" with
// an optional " (unit)" suffix.
type column struct {
	sensor  sensors.SensorID
	channel sensors.ChannelID
	unit    string
}

func (c column) String() string {
	return string(c.sensor) + "/" + string(c.channel)
}

func parseHeading(heading string) (column, error) {
	heading = strings.TrimSpace(heading)
	var unit string
	if strings.HasSuffix(heading, ")") {
		if open := strings.LastIndex(heading, " ("); open >= 0 {
			unit = heading[open+2 : len(heading)-1]
			heading = strings.TrimSpace(heading[:open])
		}
	}
	sensor, channel, ok := strings.Cut(heading, "/")
	sensor, channel = strings.TrimSpace(sensor), strings.TrimSpace(channel)
	if !ok || sensor == "" || channel == "" {
		return column{}, fmt.Errorf("heading %q is not of the form sensor/channel", heading)
	}
	return column{
		sensor:  sensors.SensorID(sensor),
		channel: sensors.ChannelID(channel),
		unit:    unit,
	}, nil
}

// parseTimestamp accepts integer Unix nanoseconds or an ISO 8601 time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(0, ns).UTC(), nil
	}
	t, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// table is the parsed contents of a wide CSV file. series is index-aligned
// with columns.
type table struct {
	columns []column
	series  []sensors.Samples
	// skipped counts malformed rows and cells that were dropped.
	skipped int
}

// readTable parses wide CSV data. Rows need not be in time order; each
// column's readings are kept sorted as they are inserted. Malformed rows and
// cells are logged and skipped rather than failing the whole load.
func readTable(ctx context.Context, r io.Reader, logger *slog.Logger) (*table, error) {
	lines := newLineReader(r)
	csvReader := csv.NewReader(lines)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	csvReader.ReuseRecord = true
	headings, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &table{}, nil
		}
		return nil, fmt.Errorf("failed reading CSV headings: %w", err)
	}
	t := &table{}
	seen := map[column]bool{}
	for _, heading := range headings[1:] {
		col, err := parseHeading(heading)
		if err != nil {
			return nil, err
		}
		key := column{sensor: col.sensor, channel: col.channel}
		if seen[key] {
			return nil, fmt.Errorf("duplicate CSV column %s", key)
		}
		seen[key] = true
		t.columns = append(t.columns, col)
	}
	t.series = make([]sensors.Samples, len(t.columns))

	for row := 2; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Warn("skipping malformed CSV row", "row", row, "error", err)
				t.skipped++
				continue
			}
			return nil, fmt.Errorf("failed reading CSV data: %w", err)
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			logger.Warn("skipping CSV row", "row", row, "error", err)
			t.skipped++
			continue
		}
		for i, cell := range rec[1:] {
			if i >= len(t.columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			if len(cell) < 1 {
				// Skip null cells.
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
				logger.Warn("skipping CSV cell", "row", row, "column", t.columns[i].String(), "value", cell)
				t.skipped++
				continue
			}
			insertSample(&t.series[i], ts, value)
		}
	}
	if n := lines.Pending(); n > 0 {
		logger.Debug("ignoring unterminated trailing CSV line", "bytes", n)
	}
	return t, nil
}

// insertSample places a reading after any readings with an equal or earlier
// timestamp.
func insertSample(s *sensors.Samples, ts time.Time, value float64) {
	idx := sort.Search(len(s.Timestamps), func(i int) bool {
		return s.Timestamps[i].After(ts)
	})
	s.Timestamps = slices.Insert(s.Timestamps, idx, ts)
	s.Values = slices.Insert(s.Values, idx, value)
}

type observedRange struct {
	min, max float64
	ok       bool
}

func (o *observedRange) include(s sensors.Samples) {
	lo, hi, ok := s.ValueRange()
	if !ok {
		return
	}
	if !o.ok {
		*o = observedRange{min: lo, max: hi, ok: true}
		return
	}
	o.min = min(o.min, lo)
	o.max = max(o.max, hi)
}

// channelRange resolves a channel's normalization range from what the
// manifest declares and what the data shows. A fully declared range is used
// as is; anything missing is filled from the observed values and widened if
// that leaves an empty interval.
func channelRange(declaredMin, declaredMax *float64, observed observedRange) (float64, float64) {
	lo, hi := 0.0, 1.0
	if observed.ok {
		lo, hi = observed.min, observed.max
	}
	if declaredMin != nil {
		lo = *declaredMin
	}
	if declaredMax != nil {
		hi = *declaredMax
	}
	if lo < hi || (declaredMin != nil && declaredMax != nil) {
		return lo, hi
	}
	switch {
	case declaredMin != nil:
		return lo, lo + 1
	case declaredMax != nil:
		return hi - 1, hi
	default:
		return lo - 0.5, hi + 0.5
	}
}

// buildView assembles an immutable view from a manifest and parsed CSV data.
// Either may be nil. Manifest entries come first in manifest order, followed
// by sensors and channels that only appear in CSV headings.
func buildView(m *Manifest, t *table) (*sensors.MemoryView, error) {
	if m == nil {
		m = &Manifest{}
	}
	if t == nil {
		t = &table{}
	}
	b := sensors.NewBuilder()

	declaredSensors := map[sensors.SensorID]bool{}
	for _, spec := range m.Sensors {
		id := sensors.SensorID(spec.ID)
		if err := b.AddSensor(id, spec.sensor()); err != nil {
			return nil, fmt.Errorf("failed adding sensor: %w", err)
		}
		declaredSensors[id] = true
	}
	observed := map[sensors.ChannelID]*observedRange{}
	units := map[sensors.ChannelID]string{}
	var headingChannels []sensors.ChannelID
	for i, col := range t.columns {
		if !declaredSensors[col.sensor] {
			if err := b.AddSensor(col.sensor, sensors.Sensor{Name: string(col.sensor)}); err != nil {
				return nil, fmt.Errorf("failed adding sensor: %w", err)
			}
			declaredSensors[col.sensor] = true
		}
		o, ok := observed[col.channel]
		if !ok {
			o = &observedRange{}
			observed[col.channel] = o
			headingChannels = append(headingChannels, col.channel)
		}
		o.include(t.series[i])
		if _, ok := units[col.channel]; !ok && col.unit != "" {
			units[col.channel] = col.unit
		}
	}

	declaredChannels := map[sensors.ChannelID]bool{}
	for _, spec := range m.Channels {
		id := sensors.ChannelID(spec.ID)
		kind, err := sensors.ParseChannelType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("failed adding channel %q: %w", id, err)
		}
		var o observedRange
		if p := observed[id]; p != nil {
			o = *p
		}
		lo, hi := channelRange(spec.Min, spec.Max, o)
		name := spec.Name
		if name == "" {
			name = spec.ID
		}
		unit := spec.Unit
		if unit == "" {
			unit = units[id]
		}
		if err := b.AddChannel(id, sensors.Channel{
			Name:        name,
			Description: spec.Description,
			Type:        kind,
			Unit:        unit,
			Min:         lo,
			Max:         hi,
		}); err != nil {
			return nil, fmt.Errorf("failed adding channel: %w", err)
		}
		declaredChannels[id] = true
	}
	for _, id := range headingChannels {
		if declaredChannels[id] {
			continue
		}
		lo, hi := channelRange(nil, nil, *observed[id])
		if err := b.AddChannel(id, sensors.Channel{
			Name: string(id),
			Type: sensors.Double,
			Unit: units[id],
			Min:  lo,
			Max:  hi,
		}); err != nil {
			return nil, fmt.Errorf("failed adding channel: %w", err)
		}
	}

	for i, col := range t.columns {
		if err := b.Declare(col.sensor, col.channel); err != nil {
			return nil, fmt.Errorf("failed declaring series %s: %w", col, err)
		}
		s := t.series[i]
		for j := range s.Timestamps {
			if err := b.Append(col.sensor, col.channel, s.Timestamps[j], s.Values[j]); err != nil {
				return nil, fmt.Errorf("failed appending to series %s: %w", col, err)
			}
		}
	}
	start, end, ok, err := m.timeRange()
	if err != nil {
		return nil, err
	}
	if ok {
		b.SetTimeRange(start, end)
	}
	return b.Build(), nil
}

// ReadView builds a view from a manifest and CSV data without touching the
// filesystem. Either argument may be nil.
func ReadView(ctx context.Context, manifest *Manifest, data io.Reader, logger *slog.Logger) (*sensors.MemoryView, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var t *table
	if data != nil {
		var err error
		t, err = readTable(ctx, data, logger)
		if err != nil {
			return nil, err
		}
	}
	return buildView(manifest, t)
}
