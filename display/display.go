// Package display derives what each sensor panel shows from the shared
// selection. Nothing here draws; a renderer reads the derived state after
// the selection changes.
//
// Each panel implements selection.Consumer and decides in its hooks what to
// redo. Panel callbacks such as a clicked sensor feed back into the
// controller's setters, never from inside a hook.
package display

import (
	"time"

	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// Panels is the full set of display consumers attached to one controller.
type Panels struct {
	Table   *SensorTable
	Detail  *Detail
	Heatmap *Heatmap
	Sprites *Sprites

	cancel func()
}

// Attach creates every panel, registers it on sel and wires the panels'
// user callbacks into sel's setters. The panels are populated from sel's
// current state before Attach returns.
func Attach(sel *selection.Controller) *Panels {
	p := &Panels{
		Table:   NewSensorTable(sel),
		Detail:  NewDetail(sel),
		Heatmap: NewHeatmap(sel),
		Sprites: NewSprites(sel),
	}
	p.Table.OnSensorClicked = sel.SetSensorID
	p.Sprites.OnSensorClicked = sel.SetSensorID
	p.Heatmap.OnChannelChosen = sel.SetChannelID

	consumers := []selection.Consumer{p.Table, p.Detail, p.Heatmap, p.Sprites}
	cancels := make([]func(), 0, len(consumers))
	for _, c := range consumers {
		cancels = append(cancels, sel.Register(c))
		c.DataViewChanged(nil, sel.DataView())
	}
	p.cancel = func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
	return p
}

// Detach unregisters every panel. The panels keep their last state.
func (p *Panels) Detach() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Snapshot is a point-in-time summary of the panels, suitable for logging
// or printing.
type Snapshot struct {
	Time    time.Time
	Sensor  sensors.SensorID
	Channel sensors.ChannelID
	Columns []Column
	Rows    []Row
	Legend  []string
	Values  map[sensors.SensorID]float64
	Cursor  int
}

// Snapshot captures the panels' derived state along with the selection it
// was derived from.
func (p *Panels) Snapshot(sel *selection.Controller) Snapshot {
	sensor, _ := sel.SensorID()
	channel, _ := sel.ChannelID()
	return Snapshot{
		Time:    sel.Time(),
		Sensor:  sensor,
		Channel: channel,
		Columns: p.Table.Columns(),
		Rows:    p.Table.Rows(),
		Legend:  p.Heatmap.Legend(),
		Values:  p.Heatmap.Values(),
		Cursor:  p.Detail.Cursor(),
	}
}
