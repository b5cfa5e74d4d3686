package display

import (
	"fmt"
	"image/color"
	"time"

	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
	"git.sr.ht/~whereswaldon/sensorview/timeindex"
)

// Chart is the line chart of one channel for the detail sensor. Timestamps
// and Values are shared with the view and must not be modified.
type Chart struct {
	Channel    sensors.ChannelID
	Title      string
	Min, Max   float64
	Color      color.NRGBA
	Timestamps []time.Time
	Values     []float64
}

// Detail charts every channel of the current sensor and tracks the sample
// highlighted at the current time. Charts are rebuilt when the view or
// sensor changes; a time change only moves the cursor. Without a view or a
// known sensor the panel is empty.
type Detail struct {
	sel    *selection.Controller
	title  string
	charts []Chart
	cursor int

	chartBuilds, cursorMoves int
}

var _ selection.Consumer = (*Detail)(nil)

func NewDetail(sel *selection.Controller) *Detail {
	d := &Detail{sel: sel}
	d.reset()
	return d
}

func (d *Detail) Title() string { return d.title }

func (d *Detail) Charts() []Chart { return d.charts }

// Cursor returns the highlighted sample index shared by every chart, or -1.
func (d *Detail) Cursor() int { return d.cursor }

// Builds reports how many times the charts were rebuilt and the cursor
// moved.
func (d *Detail) Builds() (charts, cursor int) {
	return d.chartBuilds, d.cursorMoves
}

func (d *Detail) DataViewChanged(_, _ sensors.View) {
	d.updateCharts()
}

func (d *Detail) TimeChanged(_, _ time.Time) {
	d.updateCursor()
}

func (d *Detail) SensorChanged(_, _ sensors.SensorID) {
	d.updateCharts()
}

func (d *Detail) ChannelChanged(_, _ sensors.ChannelID) {}

// current returns the view and the selected sensor if both are known.
func (d *Detail) current() (sensors.View, sensors.SensorID, sensors.Sensor, bool) {
	view := d.sel.DataView()
	if view == nil {
		return nil, "", sensors.Sensor{}, false
	}
	id, ok := d.sel.SensorID()
	if !ok {
		return nil, "", sensors.Sensor{}, false
	}
	sensor, ok := view.Sensors().Get(id)
	if !ok {
		return nil, "", sensors.Sensor{}, false
	}
	return view, id, sensor, true
}

func (d *Detail) reset() {
	d.title = "Sensor Details"
	d.charts = nil
	d.cursor = -1
}

func (d *Detail) updateCharts() {
	view, id, sensor, ok := d.current()
	if !ok {
		d.reset()
		return
	}
	d.title = "Sensor: " + sensor.Name
	charts := make([]Chart, 0, view.Channels().Len())
	i := 0
	for channelID, channel := range view.Channels().All() {
		samples, _ := view.Samples(id, channelID)
		charts = append(charts, Chart{
			Channel:    channelID,
			Title:      fmt.Sprintf("%s (%s)", channel.Name, channel.Unit),
			Min:        channel.Min,
			Max:        channel.Max,
			Color:      seriesColor(i),
			Timestamps: samples.Timestamps,
			Values:     samples.Values,
		})
		i++
	}
	d.charts = charts
	d.chartBuilds++
	// Fresh charts carry no highlight yet.
	d.cursor = -1
	d.updateCursor()
}

func (d *Detail) updateCursor() {
	view, id, _, ok := d.current()
	if !ok {
		return
	}
	channelID, _, ok := view.Channels().First()
	if !ok {
		return
	}
	samples, ok := view.Samples(id, channelID)
	if !ok {
		return
	}
	index := timeindex.Nearest(samples.Timestamps, d.sel.Time())
	if index == d.cursor {
		return
	}
	d.cursor = index
	d.cursorMoves++
}
