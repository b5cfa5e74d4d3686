// Package resolve answers "what was the value of channel C on sensor S at
// time T" against a sensors.View.
//
// None of these functions fail. Missing views, sensors, channels or series
// resolve to a documented default so that one sensor without data never
// prevents the rest from being displayed.
package resolve

import (
	"math"
	"time"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
	"git.sr.ht/~whereswaldon/sensorview/timeindex"
)

// Fallback is the normalized value reported when inputs are incomplete.
const Fallback = 0.0

// Reading is a single stored sample.
type Reading struct {
	Index     int
	Timestamp time.Time
	Value     float64
}

// lookup gathers the channel and series for a query, reporting false if
// anything is missing or the series has no readings.
func lookup(view sensors.View, sensorID sensors.SensorID, channelID sensors.ChannelID) (sensors.Channel, sensors.Samples, bool) {
	if view == nil {
		return sensors.Channel{}, sensors.Samples{}, false
	}
	if !view.Sensors().Has(sensorID) {
		return sensors.Channel{}, sensors.Samples{}, false
	}
	channel, ok := view.Channels().Get(channelID)
	if !ok {
		return sensors.Channel{}, sensors.Samples{}, false
	}
	samples, ok := view.Samples(sensorID, channelID)
	if !ok || samples.Count() < 1 {
		return sensors.Channel{}, sensors.Samples{}, false
	}
	return channel, samples, true
}

// Interpolated returns the raw value of the series at the given time,
// linearly interpolated between the two samples that bracket it. Times
// outside the series take the value of the nearest end.
func Interpolated(view sensors.View, sensorID sensors.SensorID, channelID sensors.ChannelID, at time.Time) (float64, bool) {
	_, samples, ok := lookup(view, sensorID, channelID)
	if !ok {
		return 0, false
	}
	return interpolate(samples, at), true
}

func interpolate(samples sensors.Samples, at time.Time) float64 {
	position := timeindex.Fractional(samples.Timestamps, at)
	i1 := int(math.Floor(position))
	i2 := int(math.Ceil(position))
	if i1 == i2 {
		return samples.Values[i1]
	}
	v1, v2 := samples.Values[i1], samples.Values[i2]
	return v1 + (v2-v1)*(position-float64(i1))
}

// Normalized returns the interpolated value at the given time rescaled
// against the channel's declared range, or Fallback if any input is
// missing. The result is not clamped: readings outside [Min, Max] land
// outside [0, 1].
func Normalized(view sensors.View, sensorID sensors.SensorID, channelID sensors.ChannelID, at time.Time) float64 {
	channel, samples, ok := lookup(view, sensorID, channelID)
	if !ok {
		return Fallback
	}
	return Normalize(channel, interpolate(samples, at))
}

// Exact returns the stored sample closest to the given time. ok is false
// when there is no sample to show.
func Exact(view sensors.View, sensorID sensors.SensorID, channelID sensors.ChannelID, at time.Time) (Reading, bool) {
	_, samples, ok := lookup(view, sensorID, channelID)
	if !ok {
		return Reading{}, false
	}
	i := timeindex.Nearest(samples.Timestamps, at)
	return Reading{
		Index:     i,
		Timestamp: samples.Timestamps[i],
		Value:     samples.Values[i],
	}, true
}

// Normalize rescales raw against the channel's declared range.
func Normalize(channel sensors.Channel, raw float64) float64 {
	return (raw - channel.Min) / (channel.Max - channel.Min)
}

// Clamp01 limits v to [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
