package display

import (
	"fmt"
	"image/color"
	"time"

	"git.sr.ht/~whereswaldon/sensorview/resolve"
	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// ChannelOption is one entry of the heatmap's channel chooser.
type ChannelOption struct {
	ID   sensors.ChannelID
	Name string
}

// ShadingGroup collects the sensors that shade one model object. Sensors
// keep view order.
type ShadingGroup struct {
	ObjectID int
	Sensors  []sensors.SensorID
}

// Heatmap shades model objects by the normalized value of the current
// channel at the current time.
type Heatmap struct {
	sel     *selection.Controller
	options []ChannelOption
	legend  []string
	groups  []ShadingGroup
	values  map[sensors.SensorID]float64

	setups, updates int

	// OnChannelChosen is invoked by Choose.
	OnChannelChosen func(sensors.ChannelID)
}

var _ selection.Consumer = (*Heatmap)(nil)

func NewHeatmap(sel *selection.Controller) *Heatmap {
	return &Heatmap{sel: sel}
}

// Options returns the channels that can be shown, in view order.
func (h *Heatmap) Options() []ChannelOption { return h.options }

// Legend returns the minimum, midpoint and maximum labels of the current
// channel's range.
func (h *Heatmap) Legend() []string { return h.legend }

// Groups returns the shading groups of every sensor linked to an object.
func (h *Heatmap) Groups() []ShadingGroup { return h.groups }

// Values returns the last computed value of every shaded sensor.
func (h *Heatmap) Values() map[sensors.SensorID]float64 { return h.values }

// Builds reports how many times the shading was set up from scratch and
// how many times its values were recomputed.
func (h *Heatmap) Builds() (setups, updates int) {
	return h.setups, h.updates
}

func (h *Heatmap) DataViewChanged(_, _ sensors.View) {
	h.updateChannels()
	h.setup()
}

func (h *Heatmap) TimeChanged(_, _ time.Time) {
	h.update()
}

func (h *Heatmap) SensorChanged(_, _ sensors.SensorID) {}

func (h *Heatmap) ChannelChanged(_, _ sensors.ChannelID) {
	h.updateLegend()
	h.update()
}

// Choose reports that the user picked a channel from the options.
func (h *Heatmap) Choose(id sensors.ChannelID) {
	for _, o := range h.options {
		if o.ID == id {
			if h.OnChannelChosen != nil {
				h.OnChannelChosen(id)
			}
			return
		}
	}
}

// Value returns the normalized value of sensorID at the current time and
// channel, or resolve.Fallback.
func (h *Heatmap) Value(sensorID sensors.SensorID) float64 {
	channelID, ok := h.sel.ChannelID()
	if !ok {
		return resolve.Fallback
	}
	return resolve.Normalized(h.sel.DataView(), sensorID, channelID, h.sel.Time())
}

// Color returns the heatmap color of a normalized value.
func (h *Heatmap) Color(v float64) color.NRGBA {
	return gradient(HeatmapStops, v)
}

func (h *Heatmap) updateChannels() {
	view := h.sel.DataView()
	if view == nil {
		h.options, h.legend = nil, nil
		return
	}
	options := make([]ChannelOption, 0, view.Channels().Len())
	for id, channel := range view.Channels().All() {
		options = append(options, ChannelOption{ID: id, Name: channel.Name})
	}
	h.options = options
	h.updateLegend()
}

func (h *Heatmap) updateLegend() {
	view := h.sel.DataView()
	channelID, ok := h.sel.ChannelID()
	if view == nil || !ok {
		h.legend = nil
		return
	}
	channel, ok := view.Channels().Get(channelID)
	if !ok {
		h.legend = nil
		return
	}
	h.legend = []string{
		fmt.Sprintf("%.2f%s", channel.Min, channel.Unit),
		fmt.Sprintf("%.2f%s", (channel.Max+channel.Min)/2, channel.Unit),
		fmt.Sprintf("%.2f%s", channel.Max, channel.Unit),
	}
}

func (h *Heatmap) setup() {
	view := h.sel.DataView()
	if view == nil {
		h.groups, h.values = nil, nil
		return
	}
	h.values = nil
	var groups []ShadingGroup
	byObject := map[int]int{}
	for id, sensor := range view.Sensors().All() {
		if !sensor.HasObject() {
			continue
		}
		i, ok := byObject[sensor.ObjectID]
		if !ok {
			i = len(groups)
			byObject[sensor.ObjectID] = i
			groups = append(groups, ShadingGroup{ObjectID: sensor.ObjectID})
		}
		groups[i].Sensors = append(groups[i].Sensors, id)
	}
	h.groups = groups
	h.setups++
	h.update()
}

func (h *Heatmap) update() {
	if h.groups == nil {
		return
	}
	values := make(map[sensors.SensorID]float64)
	for _, g := range h.groups {
		for _, id := range g.Sensors {
			values[id] = h.Value(id)
		}
	}
	h.values = values
	h.updates++
}
