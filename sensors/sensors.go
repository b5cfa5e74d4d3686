package sensors

import (
	"fmt"
	"strings"
	"time"
)

// SensorID identifies a sensor within a View.
type SensorID string

// ChannelID identifies a channel within a View.
type ChannelID string

// ChannelType describes the kind of value a channel carries.
type ChannelType uint8

const (
	// Double is a scalar float64 reading.
	Double ChannelType = iota
	Unknown
)

func (c ChannelType) String() string {
	switch c {
	case Double:
		return "double"
	default:
		return "?"
	}
}

// ParseChannelType maps a textual channel type onto a ChannelType. An empty
// string is treated as Double, the only supported kind.
func ParseChannelType(s string) (ChannelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "double", "float64":
		return Double, nil
	default:
		return Unknown, fmt.Errorf("unsupported channel type %q", s)
	}
}

// Location is a position in model space.
type Location struct {
	X, Y, Z float64
}

// Sensor describes one spatially located data source.
type Sensor struct {
	Name        string
	Description string
	// GroupName is only used to group sensors for display.
	GroupName string
	Location  Location
	// ObjectID links the sensor to an object in the model. Zero means the
	// sensor has no spatial proxy.
	ObjectID int
}

// HasObject reports whether the sensor is linked to a model object.
func (s Sensor) HasObject() bool {
	return s.ObjectID != 0
}

// Channel describes one measurable quantity. Min and Max are the declared
// valid range, used only for normalization; a data source must guarantee
// Min < Max.
type Channel struct {
	Name        string
	Description string
	Type        ChannelType
	// Unit is a display string and takes no part in computation.
	Unit     string
	Min, Max float64
}

// Samples is the ordered series of readings for one sensor and channel.
// Timestamps and Values are index-aligned and Timestamps never decrease.
// Both slices are shared with the View and must not be modified.
type Samples struct {
	Timestamps []time.Time
	Values     []float64
}

// Count returns the number of readings in the series.
func (s Samples) Count() int {
	return len(s.Timestamps)
}

// ValueRange returns the smallest and largest observed value. ok is false
// for an empty series.
func (s Samples) ValueRange() (minimum, maximum float64, ok bool) {
	if len(s.Values) < 1 {
		return 0, 0, false
	}
	minimum, maximum = s.Values[0], s.Values[0]
	for _, v := range s.Values[1:] {
		minimum = min(minimum, v)
		maximum = max(maximum, v)
	}
	return minimum, maximum, true
}
