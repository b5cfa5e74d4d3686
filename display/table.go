package display

import (
	"fmt"
	"time"

	"git.sr.ht/~whereswaldon/sensorview/resolve"
	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// Column is one column of the sensor table. Channel is empty for the fixed
// sensor and group columns.
type Column struct {
	Title   string
	Channel sensors.ChannelID
}

// Row is one sensor's line in the table. Cells align with the channel
// columns; a cell is empty when the sensor has no reading for the channel.
type Row struct {
	ID     sensors.SensorID
	Sensor string
	Group  string
	Cells  []string
}

// SensorTable lists every sensor with its reading on each channel at the
// current time. Columns only change with the data view; rows are rebuilt on
// every time change.
type SensorTable struct {
	sel     *selection.Controller
	columns []Column
	rows    []Row

	columnBuilds, rowBuilds int

	// OnSensorClicked is invoked by Click.
	OnSensorClicked func(sensors.SensorID)
}

var _ selection.Consumer = (*SensorTable)(nil)

func NewSensorTable(sel *selection.Controller) *SensorTable {
	return &SensorTable{sel: sel}
}

func (t *SensorTable) Columns() []Column { return t.columns }

func (t *SensorTable) Rows() []Row { return t.rows }

// Builds reports how many times the columns and rows have been rebuilt.
func (t *SensorTable) Builds() (columns, rows int) {
	return t.columnBuilds, t.rowBuilds
}

func (t *SensorTable) DataViewChanged(_, _ sensors.View) {
	t.update(true)
}

func (t *SensorTable) TimeChanged(_, _ time.Time) {
	t.update(false)
}

func (t *SensorTable) SensorChanged(_, _ sensors.SensorID) {}

func (t *SensorTable) ChannelChanged(_, _ sensors.ChannelID) {}

// Click reports a click on the row at index i.
func (t *SensorTable) Click(i int) {
	if i < 0 || i >= len(t.rows) || t.OnSensorClicked == nil {
		return
	}
	t.OnSensorClicked(t.rows[i].ID)
}

func (t *SensorTable) update(updateColumns bool) {
	view := t.sel.DataView()
	if view == nil {
		t.columns, t.rows = nil, nil
		return
	}
	if updateColumns {
		t.columns = append(t.columns[:0:0],
			Column{Title: "Sensor"},
			Column{Title: "Group"},
		)
		for id, channel := range view.Channels().All() {
			t.columns = append(t.columns, Column{Title: channel.Name, Channel: id})
		}
		t.columnBuilds++
	}
	at := t.sel.Time()
	rows := make([]Row, 0, view.Sensors().Len())
	for sensorID, sensor := range view.Sensors().All() {
		row := Row{
			ID:     sensorID,
			Sensor: sensor.Name,
			Group:  sensor.GroupName,
			Cells:  make([]string, 0, view.Channels().Len()),
		}
		for channelID, channel := range view.Channels().All() {
			cell := ""
			if reading, ok := resolve.Exact(view, sensorID, channelID, at); ok {
				cell = fmt.Sprintf("%.2f %s", reading.Value, channel.Unit)
			}
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}
	t.rows = rows
	t.rowBuilds++
}
