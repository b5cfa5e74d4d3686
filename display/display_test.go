package display

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func ts(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

// buildTestView has two sensors in one room, one sensor without a model
// object, and a co2 series only on the first sensor.
func buildTestView(t *testing.T) *sensors.MemoryView {
	t.Helper()
	b := sensors.NewBuilder()
	require.NoError(t, b.AddSensor("s1", sensors.Sensor{Name: "Desk", GroupName: "Office", ObjectID: 42, Location: sensors.Location{X: 1}}))
	require.NoError(t, b.AddSensor("s2", sensors.Sensor{Name: "Window", GroupName: "Office", ObjectID: 42, Location: sensors.Location{Y: 2}}))
	require.NoError(t, b.AddSensor("s3", sensors.Sensor{Name: "Hall", ObjectID: 7}))
	require.NoError(t, b.AddSensor("s4", sensors.Sensor{Name: "Loose"}))
	require.NoError(t, b.AddChannel("temp", sensors.Channel{Name: "Temperature", Unit: "°C", Min: 0, Max: 40}))
	require.NoError(t, b.AddChannel("co2", sensors.Channel{Name: "CO2", Unit: "ppm", Min: 400, Max: 1200}))
	for i, v := range []float64{20, 22, 24} {
		require.NoError(t, b.Append("s1", "temp", ts(i*10), v))
		require.NoError(t, b.Append("s2", "temp", ts(i*10), v-10))
	}
	require.NoError(t, b.Append("s1", "co2", ts(0), 400))
	require.NoError(t, b.Append("s1", "co2", ts(20), 800))
	require.NoError(t, b.Declare("s3", "temp"))
	return b.Build()
}

func newTestController() *selection.Controller {
	return selection.New(selection.WithClock(func() time.Time { return ts(1000) }))
}

func TestSensorTable(t *testing.T) {
	sel := newTestController()
	table := NewSensorTable(sel)
	sel.Register(table)

	sel.SetDataView(buildTestView(t))
	assert.Equal(t, []Column{
		{Title: "Sensor"},
		{Title: "Group"},
		{Title: "Temperature", Channel: "temp"},
		{Title: "CO2", Channel: "co2"},
	}, table.Columns())

	sel.SetTime(ts(9))
	rows := table.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, Row{ID: "s1", Sensor: "Desk", Group: "Office", Cells: []string{"22.00 °C", "400.00 ppm"}}, rows[0])
	assert.Equal(t, []string{"12.00 °C", ""}, rows[1].Cells)
	assert.Equal(t, []string{"", ""}, rows[2].Cells, "an empty series shows nothing")
	assert.Equal(t, []string{"", ""}, rows[3].Cells)

	columns, rowBuilds := table.Builds()
	assert.Equal(t, 1, columns)
	assert.Equal(t, 2, rowBuilds)

	sel.SetSensorID("s2")
	sel.SetChannelID("co2")
	columns, rowBuilds = table.Builds()
	assert.Equal(t, 1, columns, "selection changes do not touch the table")
	assert.Equal(t, 2, rowBuilds)

	sel.ClearDataView()
	assert.Empty(t, table.Columns())
	assert.Empty(t, table.Rows())
}

func TestSensorTableClick(t *testing.T) {
	sel := newTestController()
	panels := Attach(sel)
	sel.SetDataView(buildTestView(t))

	panels.Table.Click(1)
	id, _ := sel.SensorID()
	assert.Equal(t, sensors.SensorID("s2"), id)

	panels.Table.Click(99)
	id, _ = sel.SensorID()
	assert.Equal(t, sensors.SensorID("s2"), id)
}

func TestDetail(t *testing.T) {
	sel := newTestController()
	detail := NewDetail(sel)
	sel.Register(detail)

	assert.Equal(t, "Sensor Details", detail.Title())
	assert.Equal(t, -1, detail.Cursor())

	sel.SetTime(ts(0))
	sel.SetDataView(buildTestView(t))
	assert.Equal(t, "Sensor: Desk", detail.Title())
	charts := detail.Charts()
	require.Len(t, charts, 2)
	assert.Equal(t, "Temperature (°C)", charts[0].Title)
	assert.Equal(t, []float64{20, 22, 24}, charts[0].Values)
	assert.Equal(t, 40.0, charts[0].Max)
	assert.Equal(t, "CO2 (ppm)", charts[1].Title)
	assert.Equal(t, []float64{400, 800}, charts[1].Values)
	assert.NotEqual(t, charts[0].Color, charts[1].Color)
	assert.Equal(t, 0, detail.Cursor())

	chartBuilds, cursorMoves := detail.Builds()
	assert.Equal(t, 1, chartBuilds)
	assert.Equal(t, 1, cursorMoves)

	// Moving within the same nearest sample leaves the cursor alone.
	sel.SetTime(ts(4))
	_, cursorMoves = detail.Builds()
	assert.Equal(t, 1, cursorMoves)
	assert.Equal(t, 0, detail.Cursor())

	// Exact equidistance favors the later sample.
	sel.SetTime(ts(15))
	assert.Equal(t, 2, detail.Cursor())
	chartBuilds, cursorMoves = detail.Builds()
	assert.Equal(t, 1, chartBuilds, "time changes never rebuild charts")
	assert.Equal(t, 2, cursorMoves)

	sel.SetSensorID("s2")
	assert.Equal(t, "Sensor: Window", detail.Title())
	assert.Equal(t, []float64{10, 12, 14}, detail.Charts()[0].Values)
	assert.Empty(t, detail.Charts()[1].Values)
	chartBuilds, _ = detail.Builds()
	assert.Equal(t, 2, chartBuilds)
	assert.Equal(t, 2, detail.Cursor())

	sel.SetSensorID("nope")
	assert.Equal(t, "Sensor Details", detail.Title())
	assert.Empty(t, detail.Charts())
	assert.Equal(t, -1, detail.Cursor())
	chartBuilds, _ = detail.Builds()
	assert.Equal(t, 2, chartBuilds)

	sel.SetSensorID("s1")
	assert.Equal(t, "Sensor: Desk", detail.Title())
	assert.Equal(t, 2, detail.Cursor())
}

func TestDetailClearedView(t *testing.T) {
	sel := newTestController()
	panels := Attach(sel)
	sel.SetTime(ts(10))
	sel.SetDataView(buildTestView(t))
	require.Equal(t, 1, panels.Detail.Cursor())

	sel.ClearDataView()
	assert.Equal(t, "Sensor Details", panels.Detail.Title())
	assert.Empty(t, panels.Detail.Charts())
	assert.Equal(t, -1, panels.Snapshot(sel).Cursor)

	// Time changes without a view leave the cursor unset.
	sel.SetTime(ts(20))
	assert.Equal(t, -1, panels.Detail.Cursor())
}

func TestHeatmap(t *testing.T) {
	sel := newTestController()
	heatmap := NewHeatmap(sel)
	sel.Register(heatmap)

	sel.SetTime(ts(5))
	sel.SetDataView(buildTestView(t))

	assert.Equal(t, []ChannelOption{{ID: "temp", Name: "Temperature"}, {ID: "co2", Name: "CO2"}}, heatmap.Options())
	assert.Equal(t, []string{"0.00°C", "20.00°C", "40.00°C"}, heatmap.Legend())
	assert.Equal(t, []ShadingGroup{
		{ObjectID: 42, Sensors: []sensors.SensorID{"s1", "s2"}},
		{ObjectID: 7, Sensors: []sensors.SensorID{"s3"}},
	}, heatmap.Groups())

	// Halfway between 20 and 22 on a 0..40 range.
	assert.InDelta(t, 21.0/40, heatmap.Value("s1"), 1e-9)
	assert.InDelta(t, 11.0/40, heatmap.Value("s2"), 1e-9)
	assert.Equal(t, 0.0, heatmap.Value("s3"), "empty series falls back")
	assert.Equal(t, 0.0, heatmap.Value("unknown"))
	assert.InDelta(t, 21.0/40, heatmap.Values()["s1"], 1e-9)
	assert.NotContains(t, heatmap.Values(), sensors.SensorID("s4"))

	setups, updates := heatmap.Builds()
	assert.Equal(t, 1, setups)
	assert.Equal(t, 1, updates)

	sel.SetTime(ts(20))
	assert.InDelta(t, 24.0/40, heatmap.Values()["s1"], 1e-9)
	sel.SetSensorID("s2")
	setups, updates = heatmap.Builds()
	assert.Equal(t, 1, setups)
	assert.Equal(t, 2, updates, "sensor changes do not affect the heatmap")

	heatmap.OnChannelChosen = sel.SetChannelID
	heatmap.Choose("co2")
	assert.Equal(t, []string{"400.00ppm", "800.00ppm", "1200.00ppm"}, heatmap.Legend())
	assert.InDelta(t, 0.5, heatmap.Values()["s1"], 1e-9)
	assert.Equal(t, 0.0, heatmap.Values()["s2"])

	heatmap.Choose("missing")
	ch, _ := sel.ChannelID()
	assert.Equal(t, sensors.ChannelID("co2"), ch)
}

func TestHeatmapViewWithoutObjects(t *testing.T) {
	sel := newTestController()
	heatmap := NewHeatmap(sel)
	sel.Register(heatmap)
	sel.SetTime(ts(5))
	sel.SetDataView(buildTestView(t))
	require.Contains(t, heatmap.Values(), sensors.SensorID("s1"))

	b := sensors.NewBuilder()
	require.NoError(t, b.AddSensor("loose", sensors.Sensor{Name: "Loose"}))
	require.NoError(t, b.AddChannel("temp", sensors.Channel{Name: "Temperature", Unit: "°C", Min: 0, Max: 40}))
	require.NoError(t, b.Append("loose", "temp", ts(0), 20))
	sel.SetDataView(b.Build())

	assert.Empty(t, heatmap.Groups())
	assert.Empty(t, heatmap.Values())
	assert.NotContains(t, heatmap.Values(), sensors.SensorID("s1"))
}

func TestHeatmapColor(t *testing.T) {
	h := NewHeatmap(newTestController())
	assert.Equal(t, color.NRGBA{B: 0xff, A: 0xff}, h.Color(0))
	assert.Equal(t, color.NRGBA{B: 0xff, A: 0xff}, h.Color(-3))
	assert.Equal(t, color.NRGBA{G: 0x80, A: 0xff}, h.Color(1.0/3))
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, A: 0xff}, h.Color(2.0/3))
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, h.Color(1))
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, h.Color(7))
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0x80, A: 0xff}, h.Color(5.0/6))
}

func TestSprites(t *testing.T) {
	sel := newTestController()
	panels := Attach(sel)
	sprites := panels.Sprites

	sel.SetDataView(buildTestView(t))
	require.Len(t, sprites.Sprites(), 4)
	assert.Equal(t, Sprite{ObjectID: FirstSpriteID, Sensor: "s1", Position: sensors.Location{X: 1}}, sprites.Sprites()[0])
	assert.Equal(t, FirstSpriteID+3, sprites.Sprites()[3].ObjectID)

	id, ok := sprites.SensorFor(FirstSpriteID + 1)
	assert.True(t, ok)
	assert.Equal(t, sensors.SensorID("s2"), id)
	_, ok = sprites.SensorFor(42)
	assert.False(t, ok)

	sprites.Click(FirstSpriteID + 2)
	selected, _ := sel.SensorID()
	assert.Equal(t, sensors.SensorID("s3"), selected)
	sprites.Click(5)
	selected, _ = sel.SensorID()
	assert.Equal(t, sensors.SensorID("s3"), selected)

	sel.SetTime(ts(3))
	assert.Equal(t, 1, sprites.Builds(), "only view changes rebuild sprites")
}

func TestAttach(t *testing.T) {
	sel := newTestController()
	sel.SetDataView(buildTestView(t))
	sel.SetTime(ts(10))

	panels := Attach(sel)
	require.Len(t, panels.Table.Rows(), 4, "panels start from the current state")
	assert.Equal(t, 1, panels.Detail.Cursor())
	assert.NotEmpty(t, panels.Heatmap.Legend())

	snap := panels.Snapshot(sel)
	assert.Equal(t, sensors.SensorID("s1"), snap.Sensor)
	assert.Equal(t, sensors.ChannelID("temp"), snap.Channel)
	assert.True(t, snap.Time.Equal(ts(10)))
	assert.Equal(t, 1, snap.Cursor)

	panels.Detach()
	panels.Detach()
	sel.SetTime(ts(20))
	assert.Equal(t, 1, panels.Detail.Cursor(), "detached panels no longer follow the selection")
}
