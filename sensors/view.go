package sensors

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// View is an immutable snapshot of historical sensor data over a bounded
// time range. A View never changes after it is published; fresh data always
// arrives as a new View.
type View interface {
	// Sensors returns every sensor in the view, in data-source order.
	Sensors() *Ordered[SensorID, Sensor]
	// Channels returns every channel in the view, in data-source order.
	Channels() *Ordered[ChannelID, Channel]
	// TimeRange returns the period covered by the view.
	TimeRange() (start, end time.Time)
	// Samples returns the series for a sensor and channel. ok is false when
	// the view has no series for the pair, which is distinct from a series
	// with zero readings.
	Samples(sensor SensorID, channel ChannelID) (samples Samples, ok bool)
}

var (
	ErrDuplicateSensor  = errors.New("duplicate sensor")
	ErrDuplicateChannel = errors.New("duplicate channel")
	ErrUnknownSensor    = errors.New("unknown sensor")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrInvalidRange     = errors.New("channel minimum must be below maximum")
	ErrOutOfOrder       = errors.New("sample precedes the previous sample in its series")
)

type seriesKey struct {
	sensor  SensorID
	channel ChannelID
}

// MemoryView is the in-memory View produced by a Builder.
type MemoryView struct {
	id         string
	sensors    *Ordered[SensorID, Sensor]
	channels   *Ordered[ChannelID, Channel]
	series     map[seriesKey]Samples
	start, end time.Time
	count      int
}

var _ View = (*MemoryView)(nil)

// ID uniquely identifies this snapshot.
func (m *MemoryView) ID() string {
	return m.id
}

func (m *MemoryView) Sensors() *Ordered[SensorID, Sensor] {
	return m.sensors
}

func (m *MemoryView) Channels() *Ordered[ChannelID, Channel] {
	return m.channels
}

func (m *MemoryView) TimeRange() (start, end time.Time) {
	return m.start, m.end
}

func (m *MemoryView) Samples(sensor SensorID, channel ChannelID) (Samples, bool) {
	s, ok := m.series[seriesKey{sensor: sensor, channel: channel}]
	return s, ok
}

// SampleCount returns the number of readings across all series.
func (m *MemoryView) SampleCount() int {
	return m.count
}

// Builder assembles a MemoryView. A Builder is not safe for concurrent use
// and is emptied by Build.
type Builder struct {
	sensors    Ordered[SensorID, Sensor]
	channels   Ordered[ChannelID, Channel]
	series     map[seriesKey]Samples
	start, end time.Time
	hasRange   bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddSensor registers a sensor. Sensors keep the order they were added in.
func (b *Builder) AddSensor(id SensorID, sensor Sensor) error {
	if !b.sensors.put(id, sensor) {
		return fmt.Errorf("%w: %q", ErrDuplicateSensor, id)
	}
	return nil
}

// AddChannel registers a channel. Channels keep the order they were added in.
func (b *Builder) AddChannel(id ChannelID, channel Channel) error {
	if !(channel.Min < channel.Max) {
		return fmt.Errorf("%w: channel %q has range [%v, %v]", ErrInvalidRange, id, channel.Min, channel.Max)
	}
	if !b.channels.put(id, channel) {
		return fmt.Errorf("%w: %q", ErrDuplicateChannel, id)
	}
	return nil
}

// Declare creates an empty series for the pair if none exists yet, so the
// view reports it as present even without readings.
func (b *Builder) Declare(sensor SensorID, channel ChannelID) error {
	key, err := b.key(sensor, channel)
	if err != nil {
		return err
	}
	if b.series == nil {
		b.series = make(map[seriesKey]Samples)
	}
	if _, ok := b.series[key]; !ok {
		b.series[key] = Samples{}
	}
	return nil
}

// Append adds a reading to the end of a series. Readings must arrive in
// non-decreasing time order per series; repeated timestamps are accepted.
func (b *Builder) Append(sensor SensorID, channel ChannelID, timestamp time.Time, value float64) error {
	key, err := b.key(sensor, channel)
	if err != nil {
		return err
	}
	if b.series == nil {
		b.series = make(map[seriesKey]Samples)
	}
	s := b.series[key]
	if n := len(s.Timestamps); n > 0 && s.Timestamps[n-1].After(timestamp) {
		return fmt.Errorf("%w: %s/%s at %v", ErrOutOfOrder, sensor, channel, timestamp)
	}
	s.Timestamps = append(s.Timestamps, timestamp)
	s.Values = append(s.Values, value)
	b.series[key] = s
	return nil
}

// SetTimeRange overrides the covered period. Without it the view covers
// exactly the span of its readings.
func (b *Builder) SetTimeRange(start, end time.Time) {
	b.start, b.end = start, end
	b.hasRange = true
}

// Build publishes the accumulated data as a new MemoryView and resets the
// builder.
func (b *Builder) Build() *MemoryView {
	m := &MemoryView{
		id:       uuid.NewString(),
		sensors:  &Ordered[SensorID, Sensor]{},
		channels: &Ordered[ChannelID, Channel]{},
		series:   make(map[seriesKey]Samples, len(b.series)),
		start:    b.start,
		end:      b.end,
	}
	*m.sensors = b.sensors
	*m.channels = b.channels
	initialized := b.hasRange
	for key, s := range b.series {
		// Clip so that appends through a returned slice can never reach
		// shared backing storage.
		s.Timestamps = s.Timestamps[:len(s.Timestamps):len(s.Timestamps)]
		s.Values = s.Values[:len(s.Values):len(s.Values)]
		m.series[key] = s
		m.count += s.Count()
		if b.hasRange || s.Count() < 1 {
			continue
		}
		first, last := s.Timestamps[0], s.Timestamps[s.Count()-1]
		if !initialized {
			m.start, m.end = first, last
			initialized = true
			continue
		}
		if first.Before(m.start) {
			m.start = first
		}
		if last.After(m.end) {
			m.end = last
		}
	}
	*b = Builder{}
	return m
}

func (b *Builder) key(sensor SensorID, channel ChannelID) (seriesKey, error) {
	if !b.sensors.Has(sensor) {
		return seriesKey{}, fmt.Errorf("%w: %q", ErrUnknownSensor, sensor)
	}
	if !b.channels.Has(channel) {
		return seriesKey{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return seriesKey{sensor: sensor, channel: channel}, nil
}
